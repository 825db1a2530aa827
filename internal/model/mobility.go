package model

// MovementRecord is one origin/destination movement between two countries.
type MovementRecord struct {
	StartLon     float64
	StartLat     float64
	EndLon       float64
	EndLat       float64
	StartCountry string
	EndCountry   string
	DistanceKM   *float64
	Pair         string
}

// Point is a coordinate in the program's projected CRS.
type Point struct {
	X float64
	Y float64
}

// CountryPointSet holds the projected movement endpoints that fall in one
// country of one pair.
type CountryPointSet struct {
	Country string
	Pair    string
	EPSG    int
	Points  []Point
}

// Len returns the number of points.
func (s CountryPointSet) Len() int { return len(s.Points) }

// Bounds returns the bounding box of the points. ok is false for an empty set.
func (s CountryPointSet) Bounds() (minX, minY, maxX, maxY float64, ok bool) {
	if len(s.Points) == 0 {
		return 0, 0, 0, 0, false
	}
	minX, minY = s.Points[0].X, s.Points[0].Y
	maxX, maxY = minX, minY
	for _, p := range s.Points[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY, true
}
