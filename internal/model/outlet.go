// Package model defines the outlet records that flow through the pipeline.
package model

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Absent is the display sentinel for optional fields that carry no value.
// It is never written to the store; absent values are NULL there.
const Absent = "N/A"

// ServiceSeparator joins service tags in the store's services column.
const ServiceSeparator = "|"

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinates returns coordinates for lat/lng, or nil when either value
// is not a finite number or falls outside the WGS84 range.
func NewCoordinates(lat, lng float64) *Coordinates {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return nil
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil
	}
	return &Coordinates{Latitude: lat, Longitude: lng}
}

// Outlet is one physical retail location extracted from the directory page.
// Name is the natural key: two outlets with the same name are the same place.
type Outlet struct {
	Name          string
	Address       string
	Phone         string
	ReferenceLink string
	Coordinates   *Coordinates
	Services      []string

	// HasAddress records whether the source object carried an address key.
	HasAddress bool
}

type outletJSON struct {
	Name          string       `json:"name"`
	Address       *string      `json:"address"`
	Phone         *string      `json:"telephone"`
	ReferenceLink *string      `json:"url"`
	Coordinates   *Coordinates `json:"geo"`
	Services      []string     `json:"services"`
}

// MarshalJSON writes absent optional fields as null and services as a list.
func (o Outlet) MarshalJSON() ([]byte, error) {
	services := o.Services
	if services == nil {
		services = []string{}
	}
	return json.Marshal(outletJSON{
		Name:          o.Name,
		Address:       nullable(o.Address),
		Phone:         nullable(o.Phone),
		ReferenceLink: nullable(o.ReferenceLink),
		Coordinates:   o.Coordinates,
		Services:      services,
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Resolved reports whether the outlet has coordinates.
func (o *Outlet) Resolved() bool {
	return o.Coordinates != nil
}

// DisplayPhone returns the phone number or the Absent sentinel.
func (o *Outlet) DisplayPhone() string {
	return orAbsent(o.Phone)
}

// DisplayAddress returns the address or the Absent sentinel.
func (o *Outlet) DisplayAddress() string {
	return orAbsent(o.Address)
}

// DisplayLink returns the reference link or the Absent sentinel.
func (o *Outlet) DisplayLink() string {
	return orAbsent(o.ReferenceLink)
}

func orAbsent(s string) string {
	if s == "" {
		return Absent
	}
	return s
}

// StoredOutlet is an outlet row as persisted in the outlets table.
type StoredOutlet struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address"`
	Phone     *string   `json:"phone"`
	WazeLink  *string   `json:"waze_link"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Services  []string  `json:"services"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outlet converts the stored row back into a pipeline outlet.
func (s *StoredOutlet) Outlet() Outlet {
	o := Outlet{
		Name:     s.Name,
		Services: s.Services,
	}
	if o.Services == nil {
		o.Services = []string{}
	}
	if s.Address != nil {
		o.Address = *s.Address
		o.HasAddress = true
	}
	if s.Phone != nil {
		o.Phone = *s.Phone
	}
	if s.WazeLink != nil {
		o.ReferenceLink = *s.WazeLink
	}
	if s.Latitude != nil && s.Longitude != nil {
		o.Coordinates = NewCoordinates(*s.Latitude, *s.Longitude)
	}
	return o
}

// JoinServices serializes service tags for the services column.
// An empty list is stored as NULL.
func JoinServices(services []string) *string {
	if len(services) == 0 {
		return nil
	}
	joined := strings.Join(services, ServiceSeparator)
	return &joined
}

// SplitServices parses the services column. NULL and "" yield an empty list.
func SplitServices(raw *string) []string {
	if raw == nil || *raw == "" {
		return []string{}
	}
	return strings.Split(*raw, ServiceSeparator)
}

// Dedupe collapses outlets sharing a name. The last occurrence wins but keeps
// the position of the first, so the result stays in source order.
func Dedupe(outlets []Outlet) []Outlet {
	index := make(map[string]int, len(outlets))
	out := make([]Outlet, 0, len(outlets))
	for _, o := range outlets {
		if i, ok := index[o.Name]; ok {
			out[i] = o
			continue
		}
		index[o.Name] = len(out)
		out = append(out, o)
	}
	return out
}
