package models

import (
	"time"
)

// RiskLevel is the categorical severity assigned to a scored report.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ScoreSource identifies which scoring strategy produced the final result.
type ScoreSource string

const (
	SourceClassifier      ScoreSource = "classifier"
	SourceColorHeuristic  ScoreSource = "color_heuristic"
	SourceKeywordFallback ScoreSource = "keyword_fallback"
)

// Report represents a submitted report from the reports queue
type Report struct {
	Seq         int       `json:"seq"`
	Timestamp   time.Time `json:"timestamp"`
	ID          string    `json:"id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Image       []byte    `json:"image,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
}

// ReportScore represents a scoring result for a report
type ReportScore struct {
	Seq             int         `json:"seq"`
	Source          ScoreSource `json:"source"`
	IsEnvironmental bool        `json:"is_environmental"`
	RiskLevel       RiskLevel   `json:"risk_level"`
	Confidence      int         `json:"confidence"`
	MatchedKeywords []string    `json:"matched_keywords,omitempty"`
	IsDuplicate     bool        `json:"is_duplicate"`
	CreatedAt       time.Time   `json:"created_at"`
}

// ReportWithScore is the message published after a report has been scored
type ReportWithScore struct {
	Report Report      `json:"report"`
	Score  ReportScore `json:"score"`
}

// Alert is the message published for high and critical risk reports
type Alert struct {
	Seq        int       `json:"seq"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Confidence int       `json:"confidence"`
	Title      string    `json:"title"`
	Location   string    `json:"location"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CreatedAt  time.Time `json:"created_at"`
}

// AlertRecipient is a registered alert subscriber, optionally bound to a
// GeoJSON polygon area of interest.
type AlertRecipient struct {
	Email       string `json:"email"`
	AreaGeoJSON string `json:"area_geojson,omitempty"`
}
