// Package geo implements the great-circle math behind the proximity checks.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean earth radius used by the haversine formula.
const EarthRadiusMeters = 6371e3

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lon)
}

// Valid reports whether p is a usable coordinate.
func Valid(p Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Within reports whether b lies inside the closed disc of radiusMeters around a.
func Within(a, b Point, radiusMeters float64) bool {
	return Distance(a, b) <= radiusMeters
}

// Box is a latitude/longitude rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether p is inside the box (edges included).
func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// BoundingBox returns a rectangle that contains every point within radiusMeters of p.
// Near the poles or across the antimeridian the longitude range widens to the whole globe.
func BoundingBox(p Point, radiusMeters float64) Box {
	dLat, dLon, ok := degreeOffsets(p, radiusMeters)
	box := Box{
		MinLat: math.Max(-90, p.Lat-dLat),
		MaxLat: math.Min(90, p.Lat+dLat),
		MinLon: -180,
		MaxLon: 180,
	}
	if ok && p.Lon-dLon >= -180 && p.Lon+dLon <= 180 {
		box.MinLon = p.Lon - dLon
		box.MaxLon = p.Lon + dLon
	}
	return box
}

const metersPerDegreeLat = math.Pi * EarthRadiusMeters / 180

// degreeOffsets converts a radius to latitude/longitude degree spans at p.
// ok is false when the longitude span is undefined (the disc touches a pole).
func degreeOffsets(p Point, radiusMeters float64) (dLat, dLon float64, ok bool) {
	// Slightly inflate so the box never clips a point sitting exactly on the radius.
	r := radiusMeters * 1.001
	dLat = r / metersPerDegreeLat
	if math.Abs(p.Lat)+dLat >= 90 {
		return dLat, 360, false
	}
	cosLat := math.Cos(radians(math.Abs(p.Lat) + dLat))
	dLon = r / (metersPerDegreeLat * cosLat)
	if dLon >= 180 {
		return dLat, 360, false
	}
	return dLat, dLon, true
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
