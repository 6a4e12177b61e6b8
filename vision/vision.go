package vision

import "errors"

// ErrUnavailable is returned when the classifier cannot run: the model is
// not loaded or the image cannot be decoded. Callers fall through to the
// next scoring strategy instead of failing the report.
var ErrUnavailable = errors.New("vision: classifier unavailable")

// Label is one classifier prediction. Rank 0 is the most likely label;
// lower-ranked predictions are trusted less by the scoring engine.
type Label struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Classifier abstracts the image classifier backend used by the scoring
// engine. Implementations must be concurrency-safe if used across
// goroutines.
type Classifier interface {
	// Classify runs the model over raw image bytes and returns predictions
	// ordered by rank (rank 0 first) with per-label scores in [0,1].
	// Returns ErrUnavailable when the image is undecodable or the model is
	// not loaded.
	Classify(image []byte) ([]Label, error)
	// SourceName returns a short backend label for logs and persistence.
	SourceName() string
}
