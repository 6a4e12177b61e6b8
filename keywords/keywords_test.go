package keywords

import (
	"testing"
)

func TestLookup(t *testing.T) {
	table := Default()

	tests := []struct {
		name        string
		label       string
		wantKeyword string
		wantOK      bool
	}{
		{
			name:        "exact match",
			label:       "elephant",
			wantKeyword: "elephant",
			wantOK:      true,
		},
		{
			name:        "case insensitive",
			label:       "Elephant",
			wantKeyword: "elephant",
			wantOK:      true,
		},
		{
			name:        "underscore normalized",
			label:       "forest_fire",
			wantKeyword: "forest fire",
			wantOK:      true,
		},
		{
			name:        "label contains keyword",
			label:       "african elephant",
			wantKeyword: "elephant",
			wantOK:      true,
		},
		{
			name:        "keyword contains label",
			label:       "fire",
			wantKeyword: "wildfire",
			wantOK:      true,
		},
		{
			name:   "no match",
			label:  "laptop",
			wantOK: false,
		},
		{
			name:   "empty label",
			label:  "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := table.Lookup(tt.label)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.label, ok, tt.wantOK)
			}
			if ok && entry.Keyword != tt.wantKeyword {
				t.Errorf("Lookup(%q) = %q, want %q", tt.label, entry.Keyword, tt.wantKeyword)
			}
		})
	}
}

func TestLookupDeterministic(t *testing.T) {
	table := Default()

	// "fire" substring-matches more than one keyword; repeated lookups must
	// resolve identically.
	first, ok := table.Lookup("fire")
	if !ok {
		t.Fatal("expected a match for ambiguous label")
	}
	for i := 0; i < 100; i++ {
		entry, ok := table.Lookup("fire")
		if !ok || entry.Keyword != first.Keyword {
			t.Fatalf("lookup %d resolved to %q, first was %q", i, entry.Keyword, first.Keyword)
		}
	}
}

func TestMatchText(t *testing.T) {
	table := Default()

	matches := table.MatchText("Oil spill near the river, dead fish everywhere")
	var got []string
	for _, m := range matches {
		got = append(got, m.Entry.Keyword)
	}

	want := map[string]bool{"oil spill": false, "river": false, "fish": false}
	for _, kw := range got {
		if _, expected := want[kw]; expected {
			want[kw] = true
		}
	}
	for kw, seen := range want {
		if !seen {
			t.Errorf("MatchText missed keyword %q, got %v", kw, got)
		}
	}
}

func TestMatchTextStableOrder(t *testing.T) {
	table := Default()
	text := "flood erosion wildfire pollution"

	first := table.MatchText(text)
	for i := 0; i < 20; i++ {
		again := table.MatchText(text)
		if len(again) != len(first) {
			t.Fatalf("match count changed: %d vs %d", len(again), len(first))
		}
		for j := range again {
			if again[j].Entry.Keyword != first[j].Entry.Keyword {
				t.Fatalf("match order changed at %d: %q vs %q", j, again[j].Entry.Keyword, first[j].Entry.Keyword)
			}
		}
	}
}

func TestThreatTier(t *testing.T) {
	table := Default()

	tests := []struct {
		name string
		text string
		want SeverityTier
	}{
		{"critical threat", "massive oil spill on the coast", SeverityCritical},
		{"high threat", "river flood after heavy rain", SeverityHigh},
		{"critical outranks high", "flood caused toxic runoff", SeverityCritical},
		{"no threat", "a nice beach with palm trees", SeverityNone},
		{"empty", "", SeverityNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.ThreatTier(tt.text); got != tt.want {
				t.Errorf("ThreatTier(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSeverityMultiplier(t *testing.T) {
	tests := []struct {
		severity SeverityTier
		want     float64
	}{
		{SeverityCritical, 2.0},
		{SeverityHigh, 1.5},
		{SeverityNone, 1.0},
	}

	for _, tt := range tests {
		e := Entry{Severity: tt.severity}
		if got := e.SeverityMultiplier(); got != tt.want {
			t.Errorf("SeverityMultiplier(%q) = %v, want %v", tt.severity, got, tt.want)
		}
	}
}

func TestIsHighValueHabitat(t *testing.T) {
	tests := []struct {
		location string
		want     bool
	}{
		{"Amazon basin, Brazil", true},
		{"Yellowstone National Park", true},
		{"coastal wetland area", true},
		{"downtown parking lot", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsHighValueHabitat(tt.location); got != tt.want {
			t.Errorf("IsHighValueHabitat(%q) = %v, want %v", tt.location, got, tt.want)
		}
	}
}

func TestTaxonomyIntegrity(t *testing.T) {
	table := Default()
	if table.Len() < 90 {
		t.Errorf("taxonomy unexpectedly small: %d entries", table.Len())
	}

	for _, e := range orderedEntries {
		if e.Weight <= 0 {
			t.Errorf("keyword %q has non-positive weight %v", e.Keyword, e.Weight)
		}
		if e.Severity != SeverityNone && e.Category != CategoryThreat {
			t.Errorf("keyword %q carries severity %q outside the threat category", e.Keyword, e.Severity)
		}
	}
}

func TestReducedView(t *testing.T) {
	full := Default()
	reduced := Reduced()

	if reduced.Len() >= full.Len() {
		t.Errorf("reduced view has %d entries, full has %d; want strictly fewer", reduced.Len(), full.Len())
	}

	// Every threat term survives the reduction; classifier-only species
	// names do not.
	if _, ok := reduced.Lookup("oil spill"); !ok {
		t.Error("reduced view is missing threat keyword \"oil spill\"")
	}
	if matches := reduced.MatchText("an elephant by the river"); len(matches) != 1 || matches[0].Entry.Keyword != "river" {
		t.Errorf("reduced MatchText = %v, want only the river entry", matches)
	}
	if got := reduced.ThreatTier("illegal dumping site"); got != SeverityCritical {
		t.Errorf("reduced ThreatTier = %q, want critical", got)
	}
}
