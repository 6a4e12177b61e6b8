// Package alerts decides who gets notified about a high or critical risk
// report. Recipients may be bound to a GeoJSON polygon area of interest;
// recipients without an area receive every alert.
package alerts

import (
	"encoding/json"
	"fmt"
	"time"

	"report-scoring-pipeline/models"

	geojson "github.com/paulmach/go.geojson"
)

// ShouldAlert reports whether a score warrants notifying subscribers.
// Duplicates of recently alerted reports are suppressed.
func ShouldAlert(score models.ReportScore) bool {
	if score.IsDuplicate {
		return false
	}
	return score.RiskLevel == models.RiskHigh || score.RiskLevel == models.RiskCritical
}

// BuildAlert assembles the alert message for a scored report.
func BuildAlert(report models.Report, score models.ReportScore) models.Alert {
	return models.Alert{
		Seq:        report.Seq,
		RiskLevel:  score.RiskLevel,
		Confidence: score.Confidence,
		Title:      report.Title,
		Location:   report.Location,
		Latitude:   report.Latitude,
		Longitude:  report.Longitude,
		CreatedAt:  time.Now(),
	}
}

// Match pairs a notified recipient with their parsed area of interest.
// Area is nil for recipients subscribed to every alert; callers use it to
// draw the area on the alert map.
type Match struct {
	Recipient models.AlertRecipient
	Area      *geojson.Geometry
}

// ResolveRecipients filters recipients down to those whose area of interest
// contains the report point. A recipient with no area matches everything. A
// recipient whose area fails to parse is skipped, not dropped silently: the
// caller gets the parse error alongside the matches.
func ResolveRecipients(recipients []models.AlertRecipient, lat, lon float64) ([]Match, []error) {
	var matched []Match
	var errs []error
	for _, r := range recipients {
		if r.AreaGeoJSON == "" {
			matched = append(matched, Match{Recipient: r})
			continue
		}
		geom, err := parseGeometry(r.AreaGeoJSON)
		if err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", r.Email, err))
			continue
		}
		contains, err := geometryContains(geom, lat, lon)
		if err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", r.Email, err))
			continue
		}
		if contains {
			matched = append(matched, Match{Recipient: r, Area: geom})
		}
	}
	return matched, errs
}

// geometryContains tests whether the point falls inside the geometry.
// Polygon and MultiPolygon geometries are supported.
func geometryContains(geom *geojson.Geometry, lat, lon float64) (bool, error) {
	switch {
	case geom.IsPolygon():
		return polygonContains(geom.Polygon, lat, lon), nil
	case geom.IsMultiPolygon():
		for _, poly := range geom.MultiPolygon {
			if polygonContains(poly, lat, lon) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported area geometry type %q", geom.Type)
	}
}

func parseGeometry(areaJSON string) (*geojson.Geometry, error) {
	// Areas are stored either as a Feature or as a bare geometry.
	feature := &geojson.Feature{}
	if err := json.Unmarshal([]byte(areaJSON), feature); err == nil && feature.Geometry != nil {
		return feature.Geometry, nil
	}
	geom := &geojson.Geometry{}
	if err := json.Unmarshal([]byte(areaJSON), geom); err != nil {
		return nil, fmt.Errorf("failed to parse area GeoJSON: %w", err)
	}
	return geom, nil
}

// polygonContains runs a ray cast against the outer ring, then excludes
// holes. GeoJSON rings are [lon, lat] pairs, first ring exterior.
func polygonContains(rings [][][]float64, lat, lon float64) bool {
	if len(rings) == 0 {
		return false
	}
	if !ringContains(rings[0], lat, lon) {
		return false
	}
	for _, hole := range rings[1:] {
		if ringContains(hole, lat, lon) {
			return false
		}
	}
	return true
}

func ringContains(ring [][]float64, lat, lon float64) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if len(ring[i]) < 2 || len(ring[j]) < 2 {
			continue
		}
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > lat) != (yj > lat) && lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
