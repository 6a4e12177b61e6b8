package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"report-scoring-pipeline/scoring"

	"github.com/gin-gonic/gin"
)

func newScoreRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(nil, scoring.NewEngine(nil, nil, scoring.DefaultConfig()))
	router := gin.New()
	router.POST("/api/v3/score", h.ScoreReport)
	return router
}

func postScoreForm(t *testing.T, router *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v3/score", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestScoreReportEndpointEmptyInput(t *testing.T) {
	router := newScoreRouter()

	w := postScoreForm(t, router, url.Values{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d for empty input", w.Code, http.StatusBadRequest)
	}
}

func TestScoreReportEndpointSpreadsIdenticalText(t *testing.T) {
	router := newScoreRouter()
	form := url.Values{"description": {"some odd smell near the field"}}

	// Identical text submitted repeatedly must not pin the fallback
	// confidence to one value; each request gets its own seed.
	seen := make(map[float64]bool)
	for i := 0; i < 12; i++ {
		w := postScoreForm(t, router, form)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		confidence, ok := resp["confidence"].(float64)
		if !ok {
			t.Fatalf("missing confidence in response: %s", w.Body.String())
		}
		seen[confidence] = true
	}

	if len(seen) < 2 {
		t.Errorf("12 identical submissions produced a single confidence %v; expected spread", seen)
	}
}
