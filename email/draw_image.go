package email

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"net/http"
	"time"

	"github.com/fogleman/gg"
	geojson "github.com/paulmach/go.geojson"
)

const (
	tileSize = 256
	maxTiles = 16
)

var osmTileHTTPClient = &http.Client{
	Timeout: 8 * time.Second,
}

type bbox struct {
	latMin, lonMin, latMax, lonMax float64
}

// GenerateMapImage renders an OSM map centered on the report point with a
// red marker. When area is non-nil, the subscriber's area of interest is
// drawn on top; otherwise the map covers roughly 1km around the point.
func GenerateMapImage(area *geojson.Geometry, reportLat, reportLon float64) ([]byte, error) {
	var bb bbox
	if area != nil {
		var err error
		bb, err = geometryBBox(area)
		if err != nil {
			return nil, err
		}
	} else {
		bb = pointBBox(reportLat, reportLon, 1.0)
	}

	zoom, xMin, xMax, yMin, yMax := fitZoom(bb)
	return render(xMin, xMax, yMin, yMax, zoom, area, reportLat, reportLon)
}

// pointBBox builds a bounding box covering kmAcross kilometers in both
// directions around the center. Longitude degrees shrink with latitude.
func pointBBox(centerLat, centerLon, kmAcross float64) bbox {
	latDegrees := kmAcross / 111.32
	lonDegrees := kmAcross / (111.32 * math.Cos(centerLat*math.Pi/180.0))
	span := math.Max(latDegrees, lonDegrees)
	return bbox{
		latMin: centerLat - span/2,
		latMax: centerLat + span/2,
		lonMin: centerLon - span/2,
		lonMax: centerLon + span/2,
	}
}

// fitZoom picks the deepest zoom level whose tile cover for the bounding
// box stays within maxTiles.
func fitZoom(bb bbox) (zoom, xMin, xMax, yMin, yMax int) {
	zoom = 19
	for z := zoom; z > 0; z-- {
		xMin, yMax = latLngToTile(bb.latMin, bb.lonMin, z)
		xMax, yMin = latLngToTile(bb.latMax, bb.lonMax, z)
		if (xMax-xMin+1)*(yMax-yMin+1) <= maxTiles {
			zoom = z
			break
		}
	}
	return
}

func render(xMin, xMax, yMin, yMax, zoom int, area *geojson.Geometry, reportLat, reportLon float64) ([]byte, error) {
	cols := xMax - xMin + 1
	rows := yMax - yMin + 1

	dst := image.NewRGBA(image.Rect(0, 0, tileSize*cols, tileSize*rows))
	dc := gg.NewContextForRGBA(dst)
	dc.SetLineWidth(3)

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			img, err := fetchTile(xMin+col, yMin+row, zoom)
			if err != nil {
				return nil, err
			}
			dc.DrawImage(img, col*tileSize, row*tileSize)
		}
	}

	proj := newProjection(xMin, xMax, yMin, yMax, zoom)

	if area != nil {
		if area.IsPolygon() {
			drawPolygon(dc, proj, area.Polygon)
		} else if area.IsMultiPolygon() {
			for _, poly := range area.MultiPolygon {
				drawPolygon(dc, proj, poly)
			}
		}
	}

	// Report marker.
	dc.SetLineWidth(2)
	ptX, ptY := proj.toImage(reportLat, reportLon)
	dc.SetRGBA255(255, 0, 0, 200)
	dc.NewSubPath()
	dc.DrawCircle(ptX, ptY, 15)
	dc.ClosePath()
	dc.FillPreserve()
	dc.SetRGBA255(233, 0, 0, 255)
	dc.Stroke()

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fetchTile fetches one tile from OSM for given tile indices.
func fetchTile(x, y, zoom int) (image.Image, error) {
	tileURL := fmt.Sprintf("https://tile.openstreetmap.org/%d/%d/%d.png", zoom, x, y)

	req, err := http.NewRequest("GET", tileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "EcoWatch/1.0")

	resp, err := osmTileHTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch tile: %s", resp.Status)
	}
	return png.Decode(resp.Body)
}

func geometryBBox(geom *geojson.Geometry) (bbox, error) {
	switch {
	case geom.IsPolygon():
		return polygonBBox(geom.Polygon), nil
	case geom.IsMultiPolygon():
		bb := bbox{latMin: 90, lonMin: 180, latMax: -90, lonMax: -180}
		for _, poly := range geom.MultiPolygon {
			bb = bb.union(polygonBBox(poly))
		}
		return bb, nil
	default:
		return bbox{}, fmt.Errorf("unsupported geometry type %v", geom.Type)
	}
}

func polygonBBox(coords [][][]float64) bbox {
	bb := bbox{latMin: 90, lonMin: 180, latMax: -90, lonMax: -180}
	for _, ring := range coords {
		for _, pt := range ring {
			bb.lonMin = math.Min(bb.lonMin, pt[0])
			bb.lonMax = math.Max(bb.lonMax, pt[0])
			bb.latMin = math.Min(bb.latMin, pt[1])
			bb.latMax = math.Max(bb.latMax, pt[1])
		}
	}
	return bb
}

func (b bbox) union(o bbox) bbox {
	return bbox{
		latMin: math.Min(b.latMin, o.latMin),
		lonMin: math.Min(b.lonMin, o.lonMin),
		latMax: math.Max(b.latMax, o.latMax),
		lonMax: math.Max(b.lonMax, o.lonMax),
	}
}

// projection maps lat/lng to pixel coordinates of the stitched tile image.
type projection struct {
	lonMin, lonMax float64
	latMin, latMax float64
	width, height  float64
}

func newProjection(xMin, xMax, yMin, yMax, zoom int) projection {
	return projection{
		lonMin: tile2lon(xMin, zoom),
		lonMax: tile2lon(xMax+1, zoom),
		latMax: tile2lat(yMin, zoom),
		latMin: tile2lat(yMax+1, zoom),
		width:  float64(xMax-xMin+1) * tileSize,
		height: float64(yMax-yMin+1) * tileSize,
	}
}

func (p projection) toImage(lat, lon float64) (x, y float64) {
	x = (lon - p.lonMin) / (p.lonMax - p.lonMin) * p.width
	y = (p.latMax - lat) / (p.latMax - p.latMin) * p.height
	return
}

func drawPolygon(dc *gg.Context, proj projection, poly [][][]float64) {
	for _, loop := range poly {
		if len(loop) == 0 {
			continue
		}
		dc.SetRGBA255(219, 33, 213, 100)
		dc.NewSubPath()
		x0, y0 := proj.toImage(loop[0][1], loop[0][0])
		dc.MoveTo(x0, y0)
		for _, pt := range loop[1:] {
			x, y := proj.toImage(pt[1], pt[0])
			dc.LineTo(x, y)
		}
		dc.ClosePath()
		dc.FillPreserve()
		dc.SetRGBA255(219, 33, 213, 255)
		dc.Stroke()
	}
}

// latLngToTile converts latitude/longitude to OSM tile indices.
func latLngToTile(lat, lon float64, zoom int) (x, y int) {
	n := math.Pow(2, float64(zoom))
	x = int((lon + 180.0) / 360.0 * n)
	y = int((1.0 - math.Log(math.Tan(lat*math.Pi/180.0)+1.0/math.Cos(lat*math.Pi/180.0))/math.Pi) / 2.0 * n)
	return
}

// tile2lon converts a tile x coordinate at zoom level z to longitude.
func tile2lon(x, z int) float64 {
	n := math.Exp2(float64(z))
	return float64(x)/n*360.0 - 180.0
}

// tile2lat converts a tile y coordinate at zoom level z to latitude.
func tile2lat(y, z int) float64 {
	n := math.Exp2(float64(z))
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	return latRad * 180 / math.Pi
}
