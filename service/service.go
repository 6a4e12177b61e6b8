package service

import (
	"errors"
	"fmt"
	"log"
	"time"

	"report-scoring-pipeline/alerts"
	"report-scoring-pipeline/config"
	"report-scoring-pipeline/database"
	"report-scoring-pipeline/dedup"
	"report-scoring-pipeline/email"
	"report-scoring-pipeline/metrics"
	"report-scoring-pipeline/models"
	"report-scoring-pipeline/rabbitmq"
	"report-scoring-pipeline/scoring"
	"report-scoring-pipeline/vision"
	"report-scoring-pipeline/vision/onnx"
	"report-scoring-pipeline/vision/stub"

	geojson "github.com/paulmach/go.geojson"
)

// Service wires the scoring engine to the queue, the database and the
// alert path.
type Service struct {
	config      *config.Config
	db          *database.Database
	engine      *scoring.Engine
	classifier  vision.Classifier
	publisher   *rabbitmq.Publisher
	alertSender *email.AlertSender
	stopChan    chan bool
}

// NewService creates a new report scoring service.
func NewService(cfg *config.Config, db *database.Database) *Service {
	classifier := buildClassifier(cfg)

	engine := scoring.NewEngine(classifier, nil, scoring.Config{
		CriticalThreshold: cfg.RiskCriticalThreshold,
		HighThreshold:     cfg.RiskHighThreshold,
		Floors: scoring.Floors{
			NonEnvironmental: cfg.FloorNonEnvironmental,
			Low:              cfg.FloorLow,
			High:             cfg.FloorHigh,
			Critical:         cfg.FloorCritical,
		},
	})

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.GetAMQPURL(), cfg.RabbitMQ.Exchange)
	if err != nil {
		log.Printf("Failed to initialize RabbitMQ publisher: %v", err)
		// Continue without publisher - scoring and persistence still work
		publisher = nil
	}

	var alertSender *email.AlertSender
	if cfg.SendGridAPIKey != "" {
		alertSender = email.NewAlertSender(cfg)
	} else {
		log.Printf("SENDGRID_API_KEY not set, alert emails disabled")
	}

	return &Service{
		config:      cfg,
		db:          db,
		engine:      engine,
		classifier:  classifier,
		publisher:   publisher,
		alertSender: alertSender,
		stopChan:    make(chan bool),
	}
}

// buildClassifier selects the image classifier from configuration. A
// failed ONNX load degrades to no classifier rather than refusing to
// start: the engine's fallback chain still scores every report.
func buildClassifier(cfg *config.Config) vision.Classifier {
	if cfg.ClassifierProvider == "stub" {
		log.Printf("Classifier provider=stub")
		return stub.NewClient()
	}

	classifier, err := onnx.NewClassifier(cfg.ModelPath, cfg.ModelMetadataPath)
	if err != nil {
		log.Printf("Failed to load ONNX classifier from %s: %v; continuing with fallback scoring only", cfg.ModelPath, err)
		return nil
	}
	log.Printf("Classifier provider=onnx model=%s", cfg.ModelPath)
	return classifier
}

// Engine exposes the scoring engine for synchronous API scoring.
func (s *Service) Engine() *scoring.Engine {
	return s.engine
}

// Start prepares the database schema.
func (s *Service) Start() {
	log.Println("Starting report scoring service...")

	if err := s.db.CreateReportsTable(); err != nil {
		log.Printf("Failed to create reports table: %v", err)
		return
	}
	if err := s.db.CreateReportScoresTable(); err != nil {
		log.Printf("Failed to create report_scores table: %v", err)
		return
	}
	if err := s.db.MigrateReportScoresTable(); err != nil {
		log.Printf("Failed to migrate report_scores table: %v", err)
		return
	}
	if err := s.db.CreateAlertRecipientsTable(); err != nil {
		log.Printf("Failed to create alert_recipients table: %v", err)
		// Continue - alerts are optional
	}
}

// Stop stops the scoring service.
func (s *Service) Stop() {
	log.Println("Stopping report scoring service...")

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Printf("Failed to close RabbitMQ publisher: %v", err)
		}
	}
	if closer, ok := s.classifier.(interface{ Close() }); ok {
		closer.Close()
	}

	close(s.stopChan)
}

// HandleSubmittedReport is the subscriber callback for the submitted
// reports queue.
func (s *Service) HandleSubmittedReport(msg *rabbitmq.Message) error {
	var report models.Report
	if err := msg.UnmarshalTo(&report); err != nil {
		return rabbitmq.Permanent(fmt.Errorf("failed to unmarshal report: %w", err))
	}
	return s.ScoreReport(&report)
}

// ScoreReport scores one report end to end: persist it, run the engine,
// flag duplicates, save and publish the score, and fan out alerts.
func (s *Service) ScoreReport(report *models.Report) error {
	if err := s.db.SaveReport(report); err != nil {
		log.Printf("Failed to save report %d: %v", report.Seq, err)
		return err
	}

	imageData := report.Image
	if len(imageData) == 0 {
		// Reports larger than the broker's frame limit arrive without the
		// image payload; the submitter stores it ahead of publishing.
		stored, err := s.db.GetReportImage(report.Seq)
		if err != nil {
			log.Printf("No stored image for report %d: %v", report.Seq, err)
		} else {
			imageData = stored
		}
	}

	log.Printf("Scoring report %d with image size: %d bytes", report.Seq, len(imageData))

	startedAt := time.Now()
	result, err := s.engine.Score(scoring.Input{
		Image:       imageData,
		Title:       report.Title,
		Description: report.Description,
		Location:    report.Location,
		Seed:        fmt.Sprintf("%s:%d", report.ID, report.Seq),
	})
	metrics.ScoringDurationSeconds.Observe(time.Since(startedAt).Seconds())
	if err != nil {
		if errors.Is(err, scoring.ErrInsufficientInput) {
			// Nothing to score and nothing will change on redelivery.
			return rabbitmq.Permanent(fmt.Errorf("report %d: %w", report.Seq, err))
		}
		return err
	}

	score := models.ReportScore{
		Seq:             report.Seq,
		Source:          result.Source,
		IsEnvironmental: result.IsEnvironmental,
		RiskLevel:       result.RiskLevel,
		Confidence:      result.Confidence,
		MatchedKeywords: result.MatchedKeywords,
		CreatedAt:       time.Now(),
	}

	imageHash := s.markDuplicate(report, &score, imageData)

	if err := s.db.SaveScore(&score, imageHash); err != nil {
		log.Printf("Failed to save score for report %d: %v", report.Seq, err)
		return err
	}
	metrics.ScoredTotal.WithLabelValues(string(score.Source), string(score.RiskLevel)).Inc()
	log.Printf("Scored report %d: source=%s environmental=%t risk=%s confidence=%d duplicate=%t",
		report.Seq, score.Source, score.IsEnvironmental, score.RiskLevel, score.Confidence, score.IsDuplicate)

	s.publishScoredReport(report, score)

	if alerts.ShouldAlert(score) {
		go s.dispatchAlerts(*report, score, imageData)
	}
	return nil
}

// markDuplicate computes the perceptual hash of the report image and flags
// the score when a recent nearby report looks the same. Returns the hash
// for persistence; zero means no hash was computed.
func (s *Service) markDuplicate(report *models.Report, score *models.ReportScore, imageData []byte) uint64 {
	if len(imageData) == 0 {
		return 0
	}
	hash, err := dedup.Hash(imageData)
	if err != nil {
		log.Printf("Failed to hash image for report %d: %v", report.Seq, err)
		return 0
	}

	since := time.Now().Add(-s.config.DedupWindow)
	recent, err := s.db.RecentImageHashes(report.Latitude, report.Longitude, s.config.DedupRadiusMeters, since)
	if err != nil {
		log.Printf("Failed to load recent image hashes for report %d: %v", report.Seq, err)
		return hash
	}

	if dedup.MatchesAny(hash, recent, dedup.DefaultMaxDistance) {
		score.IsDuplicate = true
		metrics.DuplicatesTotal.Inc()
		log.Printf("Report %d flagged as duplicate of a recent nearby report", report.Seq)
	}
	return hash
}

// publishScoredReport publishes the report with its score to RabbitMQ.
func (s *Service) publishScoredReport(report *models.Report, score models.ReportScore) {
	if s.publisher == nil {
		log.Printf("RabbitMQ publisher not available, skipping publish for report %d", report.Seq)
		return
	}

	// The image stays out of the scored message; consumers fetch it by seq.
	published := *report
	published.Image = nil

	msg := models.ReportWithScore{
		Report: published,
		Score:  score,
	}
	if err := s.publisher.Publish(s.config.RabbitMQ.ScoredRoutingKey, msg); err != nil {
		log.Printf("Failed to publish scored report %d: %v", report.Seq, err)
	} else {
		log.Printf("Successfully published scored report %d", report.Seq)
	}
}

// dispatchAlerts publishes the alert message and emails every subscriber
// whose area of interest covers the report location. Runs in a goroutine
// to keep the scoring path fast.
func (s *Service) dispatchAlerts(report models.Report, score models.ReportScore, imageData []byte) {
	alert := alerts.BuildAlert(report, score)

	if s.publisher != nil {
		if err := s.publisher.Publish(s.config.RabbitMQ.AlertRoutingKey, alert); err != nil {
			log.Printf("Failed to publish alert for report %d: %v", report.Seq, err)
		}
	}

	if s.alertSender == nil {
		return
	}

	recipients, err := s.db.ListAlertRecipients()
	if err != nil {
		log.Printf("Failed to list alert recipients for report %d: %v", report.Seq, err)
		return
	}

	matched, areaErrs := alerts.ResolveRecipients(recipients, report.Latitude, report.Longitude)
	for _, areaErr := range areaErrs {
		log.Printf("Report %d: skipping alert recipient: %v", report.Seq, areaErr)
	}
	if len(matched) == 0 {
		log.Printf("Report %d: no alert recipients for location (%.4f, %.4f)", report.Seq, report.Latitude, report.Longitude)
		return
	}

	// Recipients sharing an area of interest share a rendered map, with
	// their area drawn over it. Area-less recipients get a point map.
	for _, g := range groupByArea(matched) {
		mapImage, err := email.GenerateMapImage(g.area, report.Latitude, report.Longitude)
		if err != nil {
			log.Printf("Failed to generate map image for report %d: %v", report.Seq, err)
			// Send without the map rather than dropping the alert
			mapImage = nil
		}
		if err := s.alertSender.SendAlerts(g.recipients, alert, imageData, mapImage); err != nil {
			log.Printf("Failed to send alerts for report %d: %v", report.Seq, err)
		}
	}
}

type recipientGroup struct {
	area       *geojson.Geometry
	recipients []models.AlertRecipient
}

// groupByArea buckets matched recipients by their raw area definition,
// preserving first-seen order.
func groupByArea(matched []alerts.Match) []*recipientGroup {
	var groups []*recipientGroup
	index := make(map[string]*recipientGroup)
	for _, m := range matched {
		key := m.Recipient.AreaGeoJSON
		g, ok := index[key]
		if !ok {
			g = &recipientGroup{area: m.Area}
			index[key] = g
			groups = append(groups, g)
		}
		g.recipients = append(g.recipients, m.Recipient)
	}
	return groups
}
