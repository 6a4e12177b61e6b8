package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"report-scoring-pipeline/database"
	"report-scoring-pipeline/heatmap"
	"report-scoring-pipeline/scoring"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes bounds the synchronous scoring endpoint's image size.
const maxUploadBytes = 10 << 20

// Handlers represents the HTTP handlers
type Handlers struct {
	db     *database.Database
	engine *scoring.Engine
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *database.Database, engine *scoring.Engine) *Handlers {
	return &Handlers{db: db, engine: engine}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "report-scoring-pipeline",
	})
}

// ScoreReport scores a report synchronously without persisting it. The
// request is multipart form data: optional "image" file plus optional
// "title", "description" and "location" fields.
func (h *Handlers) ScoreReport(c *gin.Context) {
	var imageData []byte
	file, _, err := c.Request.FormFile("image")
	if err == nil {
		defer file.Close()
		imageData, err = io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Failed to read image",
			})
			return
		}
		if len(imageData) > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Image too large",
			})
			return
		}
	}

	// Seed each request uniquely so identical text submitted twice does
	// not land on identical fallback confidence.
	seed := fmt.Sprintf("%d|%s|%s", time.Now().UnixNano(), c.PostForm("title"), c.PostForm("description"))

	result, err := h.engine.Score(scoring.Input{
		Image:       imageData,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Location:    c.PostForm("location"),
		Seed:        seed,
	})
	if err != nil {
		if errors.Is(err, scoring.ErrInsufficientInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Provide an image or a text description",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to score report",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":           result.Source,
		"is_environmental": result.IsEnvironmental,
		"risk_level":       result.RiskLevel,
		"confidence":       result.Confidence,
		"matched_keywords": result.MatchedKeywords,
	})
}

// GetScoreBySeq returns the stored score for a report sequence.
func (h *Handlers) GetScoreBySeq(c *gin.Context) {
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid sequence number",
		})
		return
	}

	score, err := h.db.GetScoreBySeq(seq)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Score not found",
		})
		return
	}
	c.JSON(http.StatusOK, score)
}

// GetScoringStatus returns the last scored report sequence.
func (h *Handlers) GetScoringStatus(c *gin.Context) {
	lastScoredSeq, err := h.db.GetLastScoredSeq()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get scoring status",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"last_scored_seq": lastScoredSeq,
		"service":         "report-scoring-pipeline",
	})
}

// GetScoringStats returns scoring counts split by source and risk level.
func (h *Handlers) GetScoringStats(c *gin.Context) {
	stats, err := h.db.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get scoring stats",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetHeatmap aggregates scored reports inside a viewport into clusters.
// Query params: latmin, lonmin, latmax, lonmax.
func (h *Handlers) GetHeatmap(c *gin.Context) {
	vp, err := parseViewport(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	points, err := h.db.ListScoredPoints(vp.LatMin, vp.LonMin, vp.LatMax, vp.LonMax)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to query scored reports",
		})
		return
	}

	aggr := heatmap.NewAggregator(vp)
	for _, p := range points {
		aggr.AddPoint(p.Latitude, p.Longitude, p.RiskLevel)
	}

	c.JSON(http.StatusOK, gin.H{
		"viewport": vp,
		"clusters": aggr.Clusters(),
	})
}

func parseViewport(c *gin.Context) (heatmap.Viewport, error) {
	var vp heatmap.Viewport
	var err error
	parse := func(name string) float64 {
		v, parseErr := strconv.ParseFloat(c.Query(name), 64)
		if parseErr != nil && err == nil {
			err = errors.New("invalid or missing viewport parameter: " + name)
		}
		return v
	}
	vp.LatMin = parse("latmin")
	vp.LonMin = parse("lonmin")
	vp.LatMax = parse("latmax")
	vp.LonMax = parse("lonmax")
	if err != nil {
		return heatmap.Viewport{}, err
	}
	if vp.LatMin >= vp.LatMax || vp.LonMin >= vp.LonMax {
		return heatmap.Viewport{}, errors.New("viewport min bounds must be below max bounds")
	}
	return vp, nil
}
