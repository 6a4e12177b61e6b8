package scoring

import (
	"hash/fnv"
	"math/rand"
	"strings"

	"report-scoring-pipeline/keywords"
	"report-scoring-pipeline/models"
)

// Text fallback bonus ranges. Each bonus is drawn from [lo, lo+span].
const (
	textBaseLo, textBaseSpan = 45, 10

	habitatBonusLo, habitatBonusSpan   = 25, 10
	locationBonusLo, locationBonusSpan = 15, 10

	keywordBonusLo, keywordBonusSpan = 8, 7
	keywordBonusCap                  = 40
)

// scoreText is the scorer of last resort: it never fails. Confidence and
// risk are deliberately decoupled here: confidence reflects how specific
// the report text is, risk comes from threat-severity keywords alone.
func (e *Engine) scoreText(in Input) Result {
	rng := rand.New(rand.NewSource(seedFrom(in.Seed, in.Title, in.Description, in.Location)))

	confidence := textBaseLo + rng.Intn(textBaseSpan+1)

	// A named location is corroborating detail; a protected-habitat
	// location is worth more.
	switch {
	case keywords.IsHighValueHabitat(in.Location):
		confidence += habitatBonusLo + rng.Intn(habitatBonusSpan+1)
	case strings.TrimSpace(in.Location) != "":
		confidence += locationBonusLo + rng.Intn(locationBonusSpan+1)
	}

	// The keyword bonus consults the reduced taxonomy view only; the full
	// table is classifier-label vocabulary that rarely appears in written
	// reports. Risk still scans every threat term below.
	text := in.Title + " " + in.Description
	matches := e.fallback.MatchText(text)

	var matched []string
	keywordBonus := 0
	for _, m := range matches {
		matched = append(matched, m.Entry.Keyword)
		if keywordBonus < keywordBonusCap {
			bonus := keywordBonusLo + rng.Intn(keywordBonusSpan+1)
			if keywordBonus+bonus > keywordBonusCap {
				bonus = keywordBonusCap - keywordBonus
			}
			keywordBonus += bonus
		}
	}
	confidence += keywordBonus

	var risk models.RiskLevel
	switch e.table.ThreatTier(text + " " + in.Location) {
	case keywords.SeverityCritical:
		risk = models.RiskCritical
	case keywords.SeverityHigh:
		risk = models.RiskHigh
	default:
		risk = models.RiskLow
	}

	return normalize(Result{
		IsEnvironmental: len(matched) > 0,
		RiskLevel:       risk,
		Confidence:      confidence,
		MatchedKeywords: matched,
		Source:          models.SourceKeywordFallback,
	}, e.cfg.Floors)
}

// seedFrom hashes the request identifier (falling back to the text fields
// when no identifier was supplied) into a random-source seed. Identical
// requests score identically; distinct reports still get spread.
func seedFrom(seed string, fallback ...string) int64 {
	h := fnv.New64a()
	if seed != "" {
		h.Write([]byte(seed))
	} else {
		for _, s := range fallback {
			h.Write([]byte(s))
		}
	}
	return int64(h.Sum64())
}
