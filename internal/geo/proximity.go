// Package geo computes catchment overlaps between outlets.
package geo

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/outlet-cli/internal/model"
)

// EarthRadiusKM is the mean Earth radius used for great-circle distance.
const EarthRadiusKM = 6371.0

// DefaultRadiusKM is the catchment radius drawn around each outlet.
const DefaultRadiusKM = 5.0

// Site is a named point in WGS84 (SRID 4326, X=longitude, Y=latitude).
type Site struct {
	Name  string
	Point *geom.Point
}

// NewSite returns the site for o, or nil when o has no coordinates.
func NewSite(o model.Outlet) *Site {
	if o.Coordinates == nil {
		return nil
	}
	return &Site{
		Name:  o.Name,
		Point: geom.NewPointFlat(geom.XY, []float64{o.Coordinates.Longitude, o.Coordinates.Latitude}).SetSRID(4326),
	}
}

// DistanceKM returns the haversine distance between two points.
func DistanceKM(a, b *geom.Point) float64 {
	lat1 := a.Y() * math.Pi / 180
	lat2 := b.Y() * math.Pi / 180
	dLat := (b.Y() - a.Y()) * math.Pi / 180
	dLng := (b.X() - a.X()) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Pair is two outlets whose catchments overlap.
type Pair struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	DistanceKM float64 `json:"distance_km"`
}

// Overlaps is the result of an overlap scan.
type Overlaps struct {
	RadiusKM float64  `json:"radius_km"`
	Names    []string `json:"names"`
	Pairs    []Pair   `json:"pairs"`
}

// FindOverlaps flags every pair of outlets no more than radiusKM apart.
// Outlets without coordinates are ignored. Names are returned sorted.
func FindOverlaps(outlets []model.Outlet, radiusKM float64) Overlaps {
	if radiusKM <= 0 {
		radiusKM = DefaultRadiusKM
	}

	sites := make([]*Site, 0, len(outlets))
	for _, o := range outlets {
		if s := NewSite(o); s != nil {
			sites = append(sites, s)
		}
	}

	res := Overlaps{RadiusKM: radiusKM, Names: []string{}, Pairs: []Pair{}}
	flagged := make(map[string]bool)
	for i := 0; i < len(sites); i++ {
		for j := i + 1; j < len(sites); j++ {
			d := DistanceKM(sites[i].Point, sites[j].Point)
			if d > radiusKM {
				continue
			}
			res.Pairs = append(res.Pairs, Pair{A: sites[i].Name, B: sites[j].Name, DistanceKM: d})
			flagged[sites[i].Name] = true
			flagged[sites[j].Name] = true
		}
	}

	for name := range flagged {
		res.Names = append(res.Names, name)
	}
	sort.Strings(res.Names)
	return res
}
