package service

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"report-scoring-pipeline/alerts"
	"report-scoring-pipeline/config"
	"report-scoring-pipeline/database"
	"report-scoring-pipeline/dedup"
	"report-scoring-pipeline/models"
	"report-scoring-pipeline/rabbitmq"
	"report-scoring-pipeline/scoring"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	svc := &Service{
		config:   config.Load(),
		db:       database.NewDatabaseFromConn(conn),
		engine:   scoring.NewEngine(nil, nil, scoring.DefaultConfig()),
		stopChan: make(chan bool),
	}
	return svc, mock
}

func greenPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 200, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestScoreReportTextOnly(t *testing.T) {
	svc, mock := newTestService(t)

	report := &models.Report{
		Seq:         1,
		ID:          "0xabc",
		Title:       "Dead fish",
		Description: "dozens of dead fish along the stream",
		Location:    "mill creek",
	}

	mock.ExpectExec("INSERT IGNORE INTO reports").WillReturnResult(sqlmock.NewResult(1, 1))
	// No stored image either; the engine falls through to the text scorer.
	mock.ExpectQuery("SELECT image FROM reports").WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"image"}))
	mock.ExpectExec("INSERT INTO report_scores").
		WithArgs(1, "keyword_fallback", true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(0), false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := svc.ScoreReport(report); err != nil {
		t.Fatalf("ScoreReport() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestScoreReportFlagsDuplicate(t *testing.T) {
	svc, mock := newTestService(t)

	img := greenPNG(t)
	hash, err := dedup.Hash(img)
	if err != nil {
		t.Fatal(err)
	}

	report := &models.Report{
		Seq:       2,
		ID:        "0xdef",
		Latitude:  48.85,
		Longitude: 2.35,
		Image:     img,
	}

	mock.ExpectExec("INSERT IGNORE INTO reports").WillReturnResult(sqlmock.NewResult(1, 1))
	// A recent nearby report carries the same perceptual hash.
	mock.ExpectQuery("SELECT s.image_hash").
		WillReturnRows(sqlmock.NewRows([]string{"image_hash"}).AddRow(hash))
	mock.ExpectExec("INSERT INTO report_scores").
		WithArgs(2, "color_heuristic", true, sqlmock.AnyArg(), sqlmock.AnyArg(), "", hash, true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := svc.ScoreReport(report); err != nil {
		t.Fatalf("ScoreReport() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestScoreReportInsufficientInputIsPermanent(t *testing.T) {
	svc, mock := newTestService(t)

	report := &models.Report{Seq: 3, ID: "0x123"}

	mock.ExpectExec("INSERT IGNORE INTO reports").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT image FROM reports").WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"image"}))

	err := svc.ScoreReport(report)
	if err == nil {
		t.Fatal("ScoreReport() expected error for empty report")
	}
	var perr *rabbitmq.PermanentError
	if !errors.As(err, &perr) {
		t.Errorf("ScoreReport() error = %v, want PermanentError", err)
	}
}

func TestGroupByArea(t *testing.T) {
	area := `{"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`
	matched, errs := alerts.ResolveRecipients([]models.AlertRecipient{
		{Email: "a@example.org"},
		{Email: "b@example.org", AreaGeoJSON: area},
		{Email: "c@example.org", AreaGeoJSON: area},
	}, 0.5, 0.5)
	if len(errs) != 0 {
		t.Fatalf("unexpected area errors: %v", errs)
	}

	groups := groupByArea(matched)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2 (point map + shared area)", len(groups))
	}
	if groups[0].area != nil || len(groups[0].recipients) != 1 {
		t.Errorf("first group = %+v, want the single area-less recipient with no area", groups[0])
	}
	if groups[1].area == nil || len(groups[1].recipients) != 2 {
		t.Errorf("second group = %+v, want both area recipients sharing one geometry", groups[1])
	}
}

func TestHandleSubmittedReportBadPayload(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.HandleSubmittedReport(&rabbitmq.Message{Body: []byte("{broken")})
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	var perr *rabbitmq.PermanentError
	if !errors.As(err, &perr) {
		t.Errorf("error = %v, want PermanentError", err)
	}
}
