package geo

import (
	"math"
	"sort"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

// DefaultCellPrecision yields cells of roughly 4.9 km x 4.9 km at the equator.
const DefaultCellPrecision = 5

// Cell returns the geohash of p truncated to precision characters.
func Cell(p Point, precision int) string {
	gh := geohash.Encode(p.Lat, p.Lon)
	if precision <= 0 || precision >= len(gh) {
		return gh
	}
	return gh[:precision]
}

// CellSpan returns the latitude and longitude extent in degrees of a geohash cell.
func CellSpan(precision int) (latDeg, lonDeg float64) {
	bits := 5 * precision
	lonBits := (bits + 1) / 2
	latBits := bits / 2
	return 180 / math.Pow(2, float64(latBits)), 360 / math.Pow(2, float64(lonBits))
}

// CoverCells returns the geohash cells that together contain every point within
// radiusMeters of p. ok is false when the radius is larger than a cell, in which case
// the caller has to scan instead.
func CoverCells(p Point, radiusMeters float64, precision int) (cells []string, ok bool) {
	dLat, dLon, ok := degreeOffsets(p, radiusMeters)
	if !ok {
		return nil, false
	}
	latSpan, lonSpan := CellSpan(precision)
	if dLat > latSpan || dLon > lonSpan {
		return nil, false
	}

	seen := make(map[string]struct{}, 9)
	for _, sLat := range []float64{-1, 0, 1} {
		for _, sLon := range []float64{-1, 0, 1} {
			lat := p.Lat + sLat*dLat
			if lat > 90 || lat < -90 {
				continue
			}
			seen[Cell(Point{Lat: lat, Lon: wrapLon(p.Lon + sLon*dLon)}, precision)] = struct{}{}
		}
	}

	cells = make([]string, 0, len(seen))
	for c := range seen {
		cells = append(cells, c)
	}
	sort.Strings(cells)
	return cells, true
}

func wrapLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
