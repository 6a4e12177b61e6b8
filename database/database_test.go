package database

import (
	"testing"
	"time"

	"report-scoring-pipeline/models"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewDatabaseFromConn(conn), mock
}

func TestSaveReport(t *testing.T) {
	db, mock := newMockDatabase(t)

	report := &models.Report{
		Seq:         7,
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ID:          "0xabc",
		Latitude:    48.85,
		Longitude:   2.35,
		Image:       []byte{0xff, 0xd8},
		Title:       "Oil sheen",
		Description: "oil film on the pond",
		Location:    "city park pond",
	}

	mock.ExpectExec("INSERT IGNORE INTO reports").
		WithArgs(report.Seq, report.Timestamp, report.ID, report.Latitude, report.Longitude,
			report.Image, report.Title, report.Description, report.Location).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := db.SaveReport(report); err != nil {
		t.Errorf("SaveReport() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSaveScore(t *testing.T) {
	db, mock := newMockDatabase(t)

	score := &models.ReportScore{
		Seq:             7,
		Source:          models.SourceClassifier,
		IsEnvironmental: true,
		RiskLevel:       models.RiskCritical,
		Confidence:      82,
		MatchedKeywords: []string{"oil spill", "river"},
		IsDuplicate:     false,
	}

	mock.ExpectExec("INSERT INTO report_scores").
		WithArgs(7, "classifier", true, "critical", 82, "oil spill, river", uint64(12345), false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := db.SaveScore(score, 12345); err != nil {
		t.Errorf("SaveScore() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetScoreBySeq(t *testing.T) {
	db, mock := newMockDatabase(t)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"seq", "source", "is_environmental", "risk_level", "confidence",
		"matched_keywords", "is_duplicate", "created_at",
	}).AddRow(7, "keyword_fallback", true, "high", 64, "flood, river", false, createdAt)

	mock.ExpectQuery("SELECT seq, source, is_environmental, risk_level, confidence, matched_keywords, is_duplicate, created_at").
		WithArgs(7).
		WillReturnRows(rows)

	score, err := db.GetScoreBySeq(7)
	if err != nil {
		t.Fatalf("GetScoreBySeq() error = %v", err)
	}
	if score.Source != models.SourceKeywordFallback {
		t.Errorf("Source = %q, want keyword_fallback", score.Source)
	}
	if score.RiskLevel != models.RiskHigh {
		t.Errorf("RiskLevel = %q, want high", score.RiskLevel)
	}
	if len(score.MatchedKeywords) != 2 || score.MatchedKeywords[0] != "flood" {
		t.Errorf("MatchedKeywords = %v, want [flood river]", score.MatchedKeywords)
	}
}

func TestGetScoreBySeqNotFound(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectQuery("SELECT seq, source, is_environmental, risk_level, confidence, matched_keywords, is_duplicate, created_at").
		WithArgs(404).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}))

	if _, err := db.GetScoreBySeq(404); err == nil {
		t.Error("GetScoreBySeq() expected error for missing row")
	}
}

func TestGetLastScoredSeq(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectQuery(`SELECT MAX\(seq\) FROM report_scores`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(42))

	seq, err := db.GetLastScoredSeq()
	if err != nil {
		t.Fatalf("GetLastScoredSeq() error = %v", err)
	}
	if seq != 42 {
		t.Errorf("GetLastScoredSeq() = %d, want 42", seq)
	}
}

func TestGetLastScoredSeqEmptyTable(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectQuery(`SELECT MAX\(seq\) FROM report_scores`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	seq, err := db.GetLastScoredSeq()
	if err != nil {
		t.Fatalf("GetLastScoredSeq() error = %v", err)
	}
	if seq != 0 {
		t.Errorf("GetLastScoredSeq() = %d, want 0 for empty table", seq)
	}
}

func TestGetStats(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM report_scores`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery("SELECT source, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"source", "count"}).
			AddRow("classifier", 6).
			AddRow("keyword_fallback", 4))
	mock.ExpectQuery("SELECT risk_level, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"risk_level", "count"}).
			AddRow("low", 7).
			AddRow("critical", 3))

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.TotalScored != 10 {
		t.Errorf("TotalScored = %d, want 10", stats.TotalScored)
	}
	if stats.BySource["classifier"] != 6 {
		t.Errorf("BySource[classifier] = %d, want 6", stats.BySource["classifier"])
	}
	if stats.ByRisk["critical"] != 3 {
		t.Errorf("ByRisk[critical] = %d, want 3", stats.ByRisk["critical"])
	}
}

func TestListAlertRecipients(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectQuery("SELECT email, COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"email", "area_geojson"}).
			AddRow("ranger@example.org", `{"type":"Polygon","coordinates":[]}`).
			AddRow("ops@example.org", ""))

	recipients, err := db.ListAlertRecipients()
	if err != nil {
		t.Fatalf("ListAlertRecipients() error = %v", err)
	}
	if len(recipients) != 2 {
		t.Fatalf("got %d recipients, want 2", len(recipients))
	}
	if recipients[0].Email != "ranger@example.org" || recipients[0].AreaGeoJSON == "" {
		t.Errorf("unexpected first recipient: %+v", recipients[0])
	}
	if recipients[1].AreaGeoJSON != "" {
		t.Errorf("second recipient should have no area, got %q", recipients[1].AreaGeoJSON)
	}
}

func TestRecentImageHashes(t *testing.T) {
	db, mock := newMockDatabase(t)

	since := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT s.image_hash").
		WillReturnRows(sqlmock.NewRows([]string{"image_hash"}).
			AddRow(uint64(111)).
			AddRow(uint64(222)))

	hashes, err := db.RecentImageHashes(48.85, 2.35, 50, since)
	if err != nil {
		t.Fatalf("RecentImageHashes() error = %v", err)
	}
	if len(hashes) != 2 || hashes[0] != 111 || hashes[1] != 222 {
		t.Errorf("RecentImageHashes() = %v, want [111 222]", hashes)
	}
}

func TestListScoredPoints(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectQuery("SELECT r.latitude, r.longitude, s.risk_level").
		WithArgs(40.0, 50.0, -5.0, 5.0).
		WillReturnRows(sqlmock.NewRows([]string{"latitude", "longitude", "risk_level"}).
			AddRow(45.0, 1.0, "critical").
			AddRow(44.0, 2.0, "low"))

	points, err := db.ListScoredPoints(40.0, -5.0, 50.0, 5.0)
	if err != nil {
		t.Fatalf("ListScoredPoints() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].RiskLevel != models.RiskCritical {
		t.Errorf("first point risk = %q, want critical", points[0].RiskLevel)
	}
}
