package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the report scoring pipeline service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// RabbitMQ configuration
	RabbitMQ RabbitMQConfig

	// Classifier configuration
	ClassifierProvider string // "onnx" or "stub"
	ModelPath          string
	ModelMetadataPath  string

	// Engine tunables. The risk thresholds are empirically tuned against
	// the keyword-weight accumulation range (raw sums rarely exceed 0.3),
	// so they must stay small relative to it. Recalibrate together.
	RiskCriticalThreshold float64
	RiskHighThreshold     float64

	// Minimum confidence floors per risk tier. A zero confidence reads as
	// "no analysis happened" downstream, so every tier has a floor.
	FloorNonEnvironmental int
	FloorLow              int
	FloorHigh             int
	FloorCritical         int

	// SendGrid configuration for alert emails
	SendGridAPIKey    string
	SendGridFromName  string
	SendGridFromEmail string

	// Duplicate suppression
	DedupWindow       time.Duration
	DedupRadiusMeters float64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "ecowatch"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		RabbitMQ: RabbitMQConfig{
			Host:                getEnv("RABBITMQ_HOST", "localhost"),
			Port:                getEnv("RABBITMQ_PORT", "5672"),
			User:                getEnv("RABBITMQ_USER", "guest"),
			Password:            getEnv("RABBITMQ_PASSWORD", "guest"),
			Exchange:            getEnv("RABBITMQ_EXCHANGE", "ecowatch-reports"),
			SubmittedQueue:      getEnv("RABBITMQ_SUBMITTED_QUEUE", "submitted-reports"),
			SubmittedRoutingKey: getEnv("RABBITMQ_SUBMITTED_ROUTING_KEY", "report.submitted"),
			ScoredRoutingKey:    getEnv("RABBITMQ_SCORED_ROUTING_KEY", "report.scored"),
			AlertRoutingKey:     getEnv("RABBITMQ_ALERT_ROUTING_KEY", "report.alert"),
			PrefetchCount:       getIntEnv("RABBITMQ_PREFETCH", 20),
		},

		// Classifier defaults
		ClassifierProvider: getEnv("CLASSIFIER_PROVIDER", "onnx"),
		ModelPath:          getEnv("MODEL_PATH", "models/classifier.onnx"),
		ModelMetadataPath:  getEnv("MODEL_METADATA_PATH", "models/classifier_metadata.json"),

		// Engine defaults
		RiskCriticalThreshold: getFloatEnv("RISK_CRITICAL_THRESHOLD", 0.2),
		RiskHighThreshold:     getFloatEnv("RISK_HIGH_THRESHOLD", 0.15),
		FloorNonEnvironmental: getIntEnv("CONFIDENCE_FLOOR_NON_ENVIRONMENTAL", 30),
		FloorLow:              getIntEnv("CONFIDENCE_FLOOR_LOW", 40),
		FloorHigh:             getIntEnv("CONFIDENCE_FLOOR_HIGH", 50),
		FloorCritical:         getIntEnv("CONFIDENCE_FLOOR_CRITICAL", 60),

		// SendGrid defaults
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "EcoWatch Alerts"),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "alerts@ecowatch.example"),

		// Duplicate suppression defaults
		DedupWindow:       getDurationEnv("DEDUP_WINDOW", 24*time.Hour),
		DedupRadiusMeters: getFloatEnv("DEDUP_RADIUS_METERS", 50),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// RabbitMQConfig holds the message broker configuration
type RabbitMQConfig struct {
	Host                string
	Port                string
	User                string
	Password            string
	Exchange            string
	SubmittedQueue      string
	SubmittedRoutingKey string
	ScoredRoutingKey    string
	AlertRoutingKey     string
	PrefetchCount       int
}

// GetAMQPURL builds the AMQP connection URL
func (c *RabbitMQConfig) GetAMQPURL() string {
	return "amqp://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
