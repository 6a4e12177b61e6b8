// Package keywords holds the static environmental keyword taxonomy used to
// score both classifier labels and free text. The table is built once at
// process start and is read-only afterwards, so concurrent reads need no
// synchronization.
package keywords

import (
	"fmt"
	"strings"
)

// Category groups taxonomy entries by the kind of environmental signal
// they represent.
type Category string

const (
	CategoryAnimal    Category = "animal"
	CategoryPlant     Category = "plant"
	CategoryLandscape Category = "landscape"
	CategoryWeather   Category = "weather"
	CategoryMaterial  Category = "material"
	CategoryThreat    Category = "threat"
)

// SeverityTier marks threat-category entries with how bad a matching
// report is. Non-threat entries carry no tier.
type SeverityTier string

const (
	SeverityNone     SeverityTier = ""
	SeverityHigh     SeverityTier = "high"
	SeverityCritical SeverityTier = "critical"
)

// Severity tier multipliers applied on top of the entry weight.
const (
	criticalMultiplier = 2.0
	highMultiplier     = 1.5
)

// Entry is one taxonomy record.
type Entry struct {
	Keyword  string
	Category Category
	Weight   float64
	Severity SeverityTier
}

// SeverityMultiplier returns the sub-weight multiplier for the entry's
// severity tier.
func (e Entry) SeverityMultiplier() float64 {
	switch e.Severity {
	case SeverityCritical:
		return criticalMultiplier
	case SeverityHigh:
		return highMultiplier
	default:
		return 1.0
	}
}

// Table is an immutable keyword taxonomy view.
type Table struct {
	entries map[string]Entry
	ordered []Entry
}

// Match is a single keyword hit against a label or text.
type Match struct {
	Entry Entry
}

// Default returns the process-wide taxonomy.
func Default() *Table {
	return defaultTable
}

// Reduced returns the subset of the taxonomy consulted by the free-text
// fallback scorer: threat and material terms plus the handful of nature
// words people actually write in reports. Species names and other
// classifier-only labels are excluded so stray text cannot inflate the
// fallback confidence.
func Reduced() *Table {
	return reducedTable
}

// Lookup finds the first taxonomy entry whose keyword matches the given
// label, case-insensitively. A keyword matches when either string contains
// the other, with underscores treated as spaces (classifier label lists use
// both forms).
func (t *Table) Lookup(label string) (Entry, bool) {
	norm := normalize(label)
	if norm == "" {
		return Entry{}, false
	}
	if e, ok := t.entries[norm]; ok {
		return e, true
	}
	// Scan in declaration order so a label matching several keywords
	// resolves the same way on every call.
	for _, e := range t.ordered {
		if strings.Contains(norm, e.Keyword) || strings.Contains(e.Keyword, norm) {
			return e, true
		}
	}
	return Entry{}, false
}

// MatchText returns every taxonomy entry whose keyword occurs in the given
// free text. Matches are returned in taxonomy-declaration order so callers
// get stable output for identical inputs.
func (t *Table) MatchText(text string) []Match {
	norm := normalize(text)
	if norm == "" {
		return nil
	}
	var matches []Match
	for _, e := range t.ordered {
		if strings.Contains(norm, e.Keyword) {
			matches = append(matches, Match{Entry: e})
		}
	}
	return matches
}

// ThreatTier scans text for threat-category keywords and returns the worst
// severity tier found. Critical outranks high.
func (t *Table) ThreatTier(text string) SeverityTier {
	norm := normalize(text)
	if norm == "" {
		return SeverityNone
	}
	tier := SeverityNone
	for _, e := range t.ordered {
		if e.Category != CategoryThreat {
			continue
		}
		if !strings.Contains(norm, e.Keyword) {
			continue
		}
		if e.Severity == SeverityCritical {
			return SeverityCritical
		}
		tier = SeverityHigh
	}
	return tier
}

// Len returns the number of taxonomy entries.
func (t *Table) Len() int { return len(t.entries) }

// highValueHabitatTerms are location strings that mark protected or
// ecologically significant areas. A location mentioning one of these earns
// the larger location bonus in the text fallback scorer.
var highValueHabitatTerms = []string{
	"amazon", "rainforest", "national park", "reserve", "sanctuary",
	"protected", "wetland", "mangrove", "conservation", "wildlife refuge",
	"biosphere", "marine park",
}

// IsHighValueHabitat reports whether the location text names a protected
// or high-value habitat area.
func IsHighValueHabitat(location string) bool {
	norm := normalize(location)
	if norm == "" {
		return false
	}
	for _, term := range highValueHabitatTerms {
		if strings.Contains(norm, term) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToLower(s), "_", " "))
}

// orderedEntries is the taxonomy in declaration order. Weights are tuned so
// that typical weighted sums across matched labels land in the 0-0.3 range
// the risk thresholds were calibrated for.
var orderedEntries = buildEntries()

var defaultTable = mustBuild(orderedEntries)

var reducedTable = mustBuild(reduceEntries(orderedEntries))

// fallbackNatureWords are the non-threat, non-material taxonomy terms kept
// in the reduced view. Everything else outside those two categories is a
// classifier label, not report-text vocabulary.
var fallbackNatureWords = map[string]bool{
	"forest": true, "river": true, "lake": true, "ocean": true,
	"reef": true, "coral": true, "beach": true, "stream": true,
	"pond": true, "tree": true, "fish": true,
}

func reduceEntries(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Category == CategoryThreat || e.Category == CategoryMaterial || fallbackNatureWords[e.Keyword] {
			out = append(out, e)
		}
	}
	return out
}

func buildEntries() []Entry {
	var out []Entry

	add := func(cat Category, weight float64, sev SeverityTier, words ...string) {
		for _, w := range words {
			out = append(out, Entry{Keyword: w, Category: cat, Weight: weight, Severity: sev})
		}
	}

	// Wildlife.
	add(CategoryAnimal, 0.15, SeverityNone,
		"elephant", "lion", "tiger", "bear", "panda", "zebra", "whale",
		"dolphin", "shark", "crocodile", "alligator")
	add(CategoryAnimal, 0.12, SeverityNone,
		"beaver", "otter", "eagle", "hawk", "owl", "pelican", "flamingo",
		"ostrich", "peacock", "turtle", "frog", "snake", "lizard", "fish",
		"seal", "octopus", "butterfly", "bee", "dragonfly", "ladybug")

	// Plants and trees.
	add(CategoryPlant, 0.15, SeverityNone,
		"tree", "oak", "pine", "palm", "maple", "willow", "birch")
	add(CategoryPlant, 0.1, SeverityNone,
		"flower", "rose", "tulip", "sunflower", "daisy", "orchid",
		"mushroom", "coral", "seaweed", "moss", "fern")

	// Landscapes and natural features.
	add(CategoryLandscape, 0.15, SeverityNone,
		"mountain", "volcano", "glacier", "cliff", "forest", "jungle",
		"river", "waterfall", "lake", "ocean", "reef")
	add(CategoryLandscape, 0.12, SeverityNone,
		"geyser", "iceberg", "beach", "lakeside", "seashore", "sandbar",
		"promontory", "desert", "canyon", "valley", "stream", "pond",
		"island", "peninsula", "atoll")

	// Weather and sky.
	add(CategoryWeather, 0.08, SeverityNone,
		"thunderstorm", "rainbow", "aurora", "sunset", "sunrise")

	// Man-made materials commonly seen in incident photos.
	add(CategoryMaterial, 0.12, SeverityNone,
		"plastic", "bottle", "trash", "garbage", "litter", "debris",
		"tire", "barrel", "styrofoam")

	// Critical environmental threats.
	add(CategoryThreat, 0.15, SeverityCritical,
		"wildfire", "forest fire", "oil spill", "pollution", "smog",
		"toxic", "deforestation", "dumping", "mining", "extinction",
		"poaching")

	// High-risk environmental indicators.
	add(CategoryThreat, 0.12, SeverityHigh,
		"drought", "flood", "erosion", "bleaching", "overfishing",
		"habitat loss", "endangered", "invasive species")

	return out
}

// mustBuild validates the taxonomy and builds the lookup table. It panics
// on duplicate keys or non-positive weights, which are programming errors
// in the static data above.
func mustBuild(entries []Entry) *Table {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Weight <= 0 {
			panic(fmt.Sprintf("keywords: non-positive weight for %q", e.Keyword))
		}
		if _, dup := m[e.Keyword]; dup {
			panic(fmt.Sprintf("keywords: duplicate keyword %q", e.Keyword))
		}
		if e.Category != CategoryThreat && e.Severity != SeverityNone {
			panic(fmt.Sprintf("keywords: severity tier on non-threat keyword %q", e.Keyword))
		}
		m[e.Keyword] = e
	}
	return &Table{entries: m, ordered: entries}
}
