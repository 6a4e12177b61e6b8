package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"report-scoring-pipeline/config"
	"report-scoring-pipeline/models"

	_ "github.com/go-sql-driver/mysql"
)

// Database represents the database connection
type Database struct {
	db *sql.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection with exponential backoff retry
	var waitInterval time.Duration = 1 * time.Second
	for {
		if err := db.Ping(); err == nil {
			break // Connection successful
		}
		log.Printf("Database connection failed, retrying in %v: %v", waitInterval, err)
		time.Sleep(waitInterval)
		waitInterval *= 2 // Exponential backoff: 1s, 2s, 4s, 8s, ...
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Database{db: db}, nil
}

// NewDatabaseFromConn wraps an existing connection; used by tests.
func NewDatabaseFromConn(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// GetDB returns the underlying sql.DB
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// CreateReportsTable creates the reports table if it doesn't exist
func (d *Database) CreateReportsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS reports (
		seq INT NOT NULL PRIMARY KEY,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		id VARCHAR(255) NOT NULL,
		latitude DOUBLE,
		longitude DOUBLE,
		image LONGBLOB,
		title VARCHAR(500),
		description TEXT,
		location VARCHAR(500),
		INDEX id_index (id),
		INDEX lat_lon_index (latitude, longitude)
	)`

	_, err := d.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}

	log.Println("reports table created/verified successfully")
	return nil
}

// CreateReportScoresTable creates the report_scores table if it doesn't exist
func (d *Database) CreateReportScoresTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS report_scores (
		seq INT NOT NULL,
		source ENUM('classifier', 'color_heuristic', 'keyword_fallback') NOT NULL,
		is_environmental BOOLEAN DEFAULT FALSE,
		risk_level ENUM('low', 'high', 'critical') DEFAULT 'low',
		confidence INT NOT NULL,
		matched_keywords TEXT,
		image_hash BIGINT UNSIGNED DEFAULT 0,
		is_duplicate BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX seq_index (seq),
		INDEX risk_level_index (risk_level),
		INDEX source_index (source),
		INDEX created_at_index (created_at)
	)`

	_, err := d.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create report_scores table: %w", err)
	}

	log.Println("report_scores table created/verified successfully")
	return nil
}

// CreateAlertRecipientsTable creates the alert_recipients table if it doesn't exist
func (d *Database) CreateAlertRecipientsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS alert_recipients (
		email VARCHAR(255) NOT NULL PRIMARY KEY,
		area_geojson TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := d.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create alert_recipients table: %w", err)
	}

	log.Println("alert_recipients table created/verified successfully")
	return nil
}

// SaveReport persists a submitted report. Duplicate sequence numbers are
// ignored so redelivered messages do not fail the pipeline.
func (d *Database) SaveReport(report *models.Report) error {
	query := `
	INSERT IGNORE INTO reports (seq, timestamp, id, latitude, longitude, image, title, description, location)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.Exec(query,
		report.Seq,
		report.Timestamp,
		report.ID,
		report.Latitude,
		report.Longitude,
		report.Image,
		report.Title,
		report.Description,
		report.Location,
	)
	if err != nil {
		return fmt.Errorf("failed to save report %d: %w", report.Seq, err)
	}
	return nil
}

// GetReportImage fetches only the image bytes for a report.
func (d *Database) GetReportImage(seq int) ([]byte, error) {
	var image []byte
	err := d.db.QueryRow("SELECT image FROM reports WHERE seq = ?", seq).Scan(&image)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image for report %d: %w", seq, err)
	}
	return image, nil
}

// SaveScore persists a scoring result along with the report image's
// perceptual hash used for duplicate suppression.
func (d *Database) SaveScore(score *models.ReportScore, imageHash uint64) error {
	query := `
	INSERT INTO report_scores (seq, source, is_environmental, risk_level, confidence, matched_keywords, image_hash, is_duplicate)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.Exec(query,
		score.Seq,
		string(score.Source),
		score.IsEnvironmental,
		string(score.RiskLevel),
		score.Confidence,
		strings.Join(score.MatchedKeywords, ", "),
		imageHash,
		score.IsDuplicate,
	)
	if err != nil {
		return fmt.Errorf("failed to save score for report %d: %w", score.Seq, err)
	}
	return nil
}

// GetScoreBySeq returns the most recent score for a report.
func (d *Database) GetScoreBySeq(seq int) (*models.ReportScore, error) {
	query := `
	SELECT seq, source, is_environmental, risk_level, confidence, matched_keywords, is_duplicate, created_at
	FROM report_scores
	WHERE seq = ?
	ORDER BY created_at DESC
	LIMIT 1`

	var score models.ReportScore
	var source, riskLevel, matched string
	err := d.db.QueryRow(query, seq).Scan(
		&score.Seq,
		&source,
		&score.IsEnvironmental,
		&riskLevel,
		&score.Confidence,
		&matched,
		&score.IsDuplicate,
		&score.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch score for report %d: %w", seq, err)
	}

	score.Source = models.ScoreSource(source)
	score.RiskLevel = models.RiskLevel(riskLevel)
	if matched != "" {
		score.MatchedKeywords = strings.Split(matched, ", ")
	}
	return &score, nil
}

// GetLastScoredSeq returns the highest report sequence that has a score.
func (d *Database) GetLastScoredSeq() (int, error) {
	var seq sql.NullInt64
	err := d.db.QueryRow("SELECT MAX(seq) FROM report_scores").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last scored seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return int(seq.Int64), nil
}

// Stats summarizes scoring activity for the stats endpoint.
type Stats struct {
	TotalScored int            `json:"total_scored"`
	BySource    map[string]int `json:"by_source"`
	ByRisk      map[string]int `json:"by_risk"`
}

// GetStats returns scoring counts, split by strategy source and risk level.
func (d *Database) GetStats() (*Stats, error) {
	stats := &Stats{
		BySource: make(map[string]int),
		ByRisk:   make(map[string]int),
	}

	err := d.db.QueryRow("SELECT COUNT(*) FROM report_scores").Scan(&stats.TotalScored)
	if err != nil {
		return nil, fmt.Errorf("failed to get total scored count: %w", err)
	}

	rows, err := d.db.Query("SELECT source, COUNT(*) FROM report_scores GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("failed to get counts by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			continue
		}
		stats.BySource[source] = count
	}

	riskRows, err := d.db.Query("SELECT risk_level, COUNT(*) FROM report_scores GROUP BY risk_level")
	if err != nil {
		return nil, fmt.Errorf("failed to get counts by risk level: %w", err)
	}
	defer riskRows.Close()
	for riskRows.Next() {
		var risk string
		var count int
		if err := riskRows.Scan(&risk, &count); err != nil {
			continue
		}
		stats.ByRisk[risk] = count
	}

	return stats, nil
}

// ListAlertRecipients returns all registered alert recipients.
func (d *Database) ListAlertRecipients() ([]models.AlertRecipient, error) {
	rows, err := d.db.Query("SELECT email, COALESCE(area_geojson, '') FROM alert_recipients")
	if err != nil {
		return nil, fmt.Errorf("failed to list alert recipients: %w", err)
	}
	defer rows.Close()

	var recipients []models.AlertRecipient
	for rows.Next() {
		var r models.AlertRecipient
		if err := rows.Scan(&r.Email, &r.AreaGeoJSON); err != nil {
			return nil, fmt.Errorf("failed to scan alert recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

// RecentImageHashes returns the perceptual hashes of reports scored within
// the window and located inside a bounding box around the given point.
func (d *Database) RecentImageHashes(lat, lon, radiusMeters float64, since time.Time) ([]uint64, error) {
	// 1 degree of latitude is about 111.32km; longitude shrinks with
	// latitude.
	latRadius := radiusMeters / 111320.0
	lonRadius := radiusMeters / (111320.0 * cosDegrees(lat))

	query := `
	SELECT s.image_hash
	FROM report_scores s
	JOIN reports r ON r.seq = s.seq
	WHERE s.image_hash != 0
	  AND s.created_at >= ?
	  AND r.latitude BETWEEN ? AND ?
	  AND r.longitude BETWEEN ? AND ?`

	rows, err := d.db.Query(query, since,
		lat-latRadius, lat+latRadius,
		lon-lonRadius, lon+lonRadius)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent image hashes: %w", err)
	}
	defer rows.Close()

	var hashes []uint64
	for rows.Next() {
		var h uint64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan image hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// ScoredPoint is one scored report location for map aggregation.
type ScoredPoint struct {
	Latitude  float64
	Longitude float64
	RiskLevel models.RiskLevel
}

// ListScoredPoints returns scored report locations inside a viewport.
func (d *Database) ListScoredPoints(latMin, lonMin, latMax, lonMax float64) ([]ScoredPoint, error) {
	query := `
	SELECT r.latitude, r.longitude, s.risk_level
	FROM report_scores s
	JOIN reports r ON r.seq = s.seq
	WHERE r.latitude BETWEEN ? AND ?
	  AND r.longitude BETWEEN ? AND ?`

	rows, err := d.db.Query(query, latMin, latMax, lonMin, lonMax)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored points: %w", err)
	}
	defer rows.Close()

	var points []ScoredPoint
	for rows.Next() {
		var p ScoredPoint
		var risk string
		if err := rows.Scan(&p.Latitude, &p.Longitude, &risk); err != nil {
			return nil, fmt.Errorf("failed to scan scored point: %w", err)
		}
		p.RiskLevel = models.RiskLevel(risk)
		points = append(points, p)
	}
	return points, rows.Err()
}
