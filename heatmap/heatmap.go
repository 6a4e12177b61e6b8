// Package heatmap aggregates scored report locations into S2 cells sized to
// the requested viewport, so map clients get a bounded number of clusters
// regardless of zoom level.
package heatmap

import (
	"report-scoring-pipeline/models"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Viewport is the visible map rectangle in degrees.
type Viewport struct {
	LatMin float64 `json:"latmin"`
	LonMin float64 `json:"lonmin"`
	LatMax float64 `json:"latmax"`
	LonMax float64 `json:"lonmax"`
}

// Center returns the midpoint of the viewport.
func (vp Viewport) Center() (lat, lon float64) {
	return (vp.LatMin + vp.LatMax) / 2, (vp.LonMin + vp.LonMax) / 2
}

// Cluster is one aggregated cell of scored reports.
type Cluster struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Count     int64   `json:"count"`
	Critical  int64   `json:"critical"`
	High      int64   `json:"high"`
	Low       int64   `json:"low"`
}

type cellUnit struct {
	count    int64
	critical int64
	high     int64
	low      int64
	origCell s2.CellID
}

// Aggregator buckets points into S2 cells at a level chosen from the
// viewport size.
type Aggregator struct {
	level int
	cells map[s2.CellID]*cellUnit
}

const (
	expectedCells = 160
	minLevel      = 6
	maxLevel      = 16
)

// cellBaseLevel picks the deepest S2 level whose cells still cover the
// viewport with fewer than expectedCells cells.
func cellBaseLevel(vp Viewport) int {
	minLL := s2.LatLngFromDegrees(vp.LatMin, vp.LonMin)
	maxLL := s2.LatLngFromDegrees(vp.LatMax, vp.LonMax)

	rect := s2.Rect{
		Lat: r1.Interval{Lo: minLL.Lat.Radians(), Hi: maxLL.Lat.Radians()},
		Lng: s1.Interval{Lo: minLL.Lng.Radians(), Hi: maxLL.Lng.Radians()},
	}
	vpArea := rect.Area()

	centerLat, centerLon := vp.Center()
	centerCell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(centerLat, centerLon))

	for lv := maxLevel; lv >= minLevel; lv-- {
		cc := s2.CellFromCellID(centerCell.Parent(lv))
		if vpArea/cc.ApproxArea() < expectedCells {
			return lv
		}
	}
	return minLevel
}

// NewAggregator creates an aggregator sized to the viewport.
func NewAggregator(vp Viewport) *Aggregator {
	return &Aggregator{
		level: cellBaseLevel(vp),
		cells: make(map[s2.CellID]*cellUnit),
	}
}

// AddPoint buckets one scored report into its parent cell.
func (a *Aggregator) AddPoint(lat, lon float64, risk models.RiskLevel) {
	pc := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon))
	parent := pc.Parent(a.level)
	unit, ok := a.cells[parent]
	if !ok {
		unit = &cellUnit{}
		a.cells[parent] = unit
	}
	unit.count++
	switch risk {
	case models.RiskCritical:
		unit.critical++
	case models.RiskHigh:
		unit.high++
	default:
		unit.low++
	}
	unit.origCell = pc
}

// Clusters returns the aggregated cells. Singleton cells keep the original
// report position instead of snapping to the cell center.
func (a *Aggregator) Clusters() []Cluster {
	out := make([]Cluster, 0, len(a.cells))
	for c, unit := range a.cells {
		ll := c.LatLng()
		if unit.count == 1 {
			ll = unit.origCell.LatLng()
		}
		out = append(out, Cluster{
			Latitude:  ll.Lat.Degrees(),
			Longitude: ll.Lng.Degrees(),
			Count:     unit.count,
			Critical:  unit.critical,
			High:      unit.high,
			Low:       unit.low,
		})
	}
	return out
}
