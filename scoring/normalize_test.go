package scoring

import (
	"testing"

	"report-scoring-pipeline/models"
)

func TestNormalizeFloors(t *testing.T) {
	floors := DefaultFloors()

	tests := []struct {
		name string
		in   Result
		want int
	}{
		{
			name: "non-environmental floor",
			in:   Result{IsEnvironmental: false, RiskLevel: models.RiskLow, Confidence: 5},
			want: 30,
		},
		{
			name: "low risk floor",
			in:   Result{IsEnvironmental: true, RiskLevel: models.RiskLow, Confidence: 12},
			want: 40,
		},
		{
			name: "high risk floor",
			in:   Result{IsEnvironmental: true, RiskLevel: models.RiskHigh, Confidence: 12},
			want: 50,
		},
		{
			name: "critical risk floor",
			in:   Result{IsEnvironmental: true, RiskLevel: models.RiskCritical, Confidence: 12},
			want: 60,
		},
		{
			name: "above floor unchanged",
			in:   Result{IsEnvironmental: true, RiskLevel: models.RiskLow, Confidence: 77},
			want: 77,
		},
		{
			name: "clamped to 100",
			in:   Result{IsEnvironmental: true, RiskLevel: models.RiskCritical, Confidence: 140},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalize(tt.in, floors)
			if got.Confidence != tt.want {
				t.Errorf("normalize() confidence = %d, want %d", got.Confidence, tt.want)
			}
		})
	}
}

func TestNormalizeNonEnvironmentalIgnoresRiskFloor(t *testing.T) {
	// Risk and environmental flags are decoupled: a non-environmental
	// result takes the non-environmental floor even with a high risk label.
	got := normalize(Result{IsEnvironmental: false, RiskLevel: models.RiskCritical, Confidence: 0}, DefaultFloors())
	if got.Confidence != 30 {
		t.Errorf("confidence = %d, want 30", got.Confidence)
	}
}
