// Package scoring implements the risk and confidence scoring engine. A
// report is scored by the first strategy in the chain that can handle it:
// the image classifier, then the color heuristic, then the text keyword
// scorer of last resort. No strategy lets a failure escape the engine;
// the only surfaced error is an entirely empty input.
package scoring

import (
	"errors"
	"log"
	"math"
	"strings"

	"report-scoring-pipeline/colors"
	"report-scoring-pipeline/keywords"
	"report-scoring-pipeline/models"
	"report-scoring-pipeline/vision"
)

// ErrInsufficientInput is returned when a report carries neither a
// readable image nor any text. It is the engine's only hard failure.
var ErrInsufficientInput = errors.New("scoring: no readable image and no text provided")

// Position decay factor per rank step. Rank 0 contributes fully; lower
// ranks decay gradually so the classifier's top guesses dominate.
const positionDecayStep = 0.15

// Dampening factor for multi-category corroboration.
const categoryDampening = 0.1

// Categories beyond this count trigger the logarithmic dampening.
const categoryDampeningMin = 3

// Confidence scale from adjusted environmental score on the classifier
// path. Weighted sums rarely exceed 0.3, so 250 maps a strong signal near
// the top of the confidence range.
const confidenceScale = 250

// Color boost rules on the classifier path.
const (
	greenBoostRatio = 0.40
	blueBoostRatio  = 0.35
	colorBoost      = 15
)

// Color standalone fallback rules.
const (
	greenFallbackRatio  = 0.30
	greenFallbackScore  = 0.4
	blueFallbackRatio   = 0.25
	blueFallbackScore   = 0.3
	brownFallbackRatio  = 0.10
	brownFallbackScore  = 0.2
	colorBaseConfidence = 60
	colorMaxConfidence  = 85
	// A brown-only signal is too weak to call the image environmental;
	// it takes at least a dominant water or vegetation band.
	colorEnvironmentalMin = 0.3
)

// Input is one scoring request. At least one of the image or the text
// fields must be present.
type Input struct {
	Image       []byte
	Title       string
	Description string
	Location    string
	// Seed identifies the request and seeds the fallback scorer's random
	// source, so identical requests score identically while distinct
	// reports still spread.
	Seed string
}

func (in Input) hasText() bool {
	return strings.TrimSpace(in.Title) != "" ||
		strings.TrimSpace(in.Description) != "" ||
		strings.TrimSpace(in.Location) != ""
}

// Result is the engine's output. It is never mutated after construction.
type Result struct {
	IsEnvironmental bool
	RiskLevel       models.RiskLevel
	Confidence      int
	MatchedKeywords []string
	Source          models.ScoreSource
}

// Config carries the engine's tunable constants. The thresholds apply to
// a dimensionless accumulated weight, not a probability.
type Config struct {
	CriticalThreshold float64
	HighThreshold     float64
	Floors            Floors
}

// DefaultConfig returns the tuned default thresholds and floors.
func DefaultConfig() Config {
	return Config{
		CriticalThreshold: 0.2,
		HighThreshold:     0.15,
		Floors:            DefaultFloors(),
	}
}

// Engine scores reports. It holds no mutable state across calls, so a
// single Engine is safe for concurrent use.
type Engine struct {
	classifier vision.Classifier // may be nil when no model is configured
	table      *keywords.Table
	fallback   *keywords.Table // reduced view for the text scorer
	cfg        Config
}

// NewEngine creates a scoring engine. A nil classifier is allowed; image
// reports then go straight to the color heuristic.
func NewEngine(classifier vision.Classifier, table *keywords.Table, cfg Config) *Engine {
	if table == nil {
		table = keywords.Default()
	}
	return &Engine{
		classifier: classifier,
		table:      table,
		fallback:   keywords.Reduced(),
		cfg:        cfg,
	}
}

// Score runs the strategy chain over the input and returns a normalized
// result. It fails only with ErrInsufficientInput.
func (e *Engine) Score(in Input) (Result, error) {
	if len(in.Image) == 0 && !in.hasText() {
		return Result{}, ErrInsufficientInput
	}

	if len(in.Image) > 0 {
		if e.classifier != nil {
			labels, err := e.classifier.Classify(in.Image)
			if err == nil {
				return e.scoreLabels(labels, in.Image), nil
			}
			if !errors.Is(err, vision.ErrUnavailable) {
				log.Printf("scoring: classifier failed, falling back to color analysis: %v", err)
			}
		}

		profile, err := colors.Analyze(in.Image)
		if err == nil {
			return e.scoreColors(profile), nil
		}

		if !in.hasText() {
			return Result{}, ErrInsufficientInput
		}
	}

	return e.scoreText(in), nil
}

// scoreLabels computes the classifier-path result: weighted keyword
// accumulation over ranked labels, corroboration dampening, then a color
// boost when the image's color profile supports the classification.
func (e *Engine) scoreLabels(labels []vision.Label, imageData []byte) Result {
	var raw float64
	var matched []string
	matchedSet := make(map[string]bool)
	categories := make(map[keywords.Category]bool)

	for _, label := range labels {
		entry, ok := e.table.Lookup(label.Name)
		if !ok {
			continue
		}
		raw += label.Score * entry.Weight * entry.SeverityMultiplier() * positionDecay(label.Rank)
		categories[entry.Category] = true
		if !matchedSet[entry.Keyword] {
			matchedSet[entry.Keyword] = true
			matched = append(matched, entry.Keyword)
		}
	}

	// Multi-signal corroboration (e.g. both "tree" and "flood" matching)
	// earns a logarithmic bump rather than a linear one.
	adjusted := raw
	if len(categories) > categoryDampeningMin {
		adjusted = raw * (1 + math.Log(1+float64(len(categories)))*categoryDampening)
	}

	risk := e.riskFor(adjusted)
	confidence := int(math.Min(100, adjusted*confidenceScale))

	// The color profile is a boost only; an unreadable image at this
	// point simply means no boost.
	if profile, err := colors.Analyze(imageData); err == nil {
		if profile.GreenRatio > greenBoostRatio {
			confidence += colorBoost
		}
		if profile.BlueRatio > blueBoostRatio {
			confidence += colorBoost
		}
	}

	return normalize(Result{
		IsEnvironmental: len(matched) > 0,
		RiskLevel:       risk,
		Confidence:      confidence,
		MatchedKeywords: matched,
		Source:          models.SourceClassifier,
	}, e.cfg.Floors)
}

// scoreColors is the standalone color fallback used when the classifier is
// unavailable but the image decodes. A color signal is weak but still
// positive evidence, so confidence starts at 60 and is capped below the
// classifier path's ceiling.
func (e *Engine) scoreColors(profile colors.Profile) Result {
	var score float64
	if profile.GreenRatio > greenFallbackRatio {
		score += greenFallbackScore
	}
	if profile.BlueRatio > blueFallbackRatio {
		score += blueFallbackScore
	}
	if profile.BrownRatio > brownFallbackRatio {
		score += brownFallbackScore
	}

	confidence := int(score * 100)
	if confidence < colorBaseConfidence {
		confidence = colorBaseConfidence
	}
	if confidence > colorMaxConfidence {
		confidence = colorMaxConfidence
	}

	return normalize(Result{
		IsEnvironmental: score >= colorEnvironmentalMin,
		RiskLevel:       e.riskFor(score),
		Confidence:      confidence,
		Source:          models.SourceColorHeuristic,
	}, e.cfg.Floors)
}

func (e *Engine) riskFor(score float64) models.RiskLevel {
	switch {
	case score > e.cfg.CriticalThreshold:
		return models.RiskCritical
	case score > e.cfg.HighThreshold:
		return models.RiskHigh
	default:
		return models.RiskLow
	}
}

func positionDecay(rank int) float64 {
	return 1 / (1 + float64(rank)*positionDecayStep)
}
