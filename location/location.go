// Package location resolves a caller's approximate whereabouts for emergency
// reports. The gateway exposes no positioning API, so resolution layers two
// best-effort sources: a cell-tower prefix table keyed by phone-number
// prefix, and the location the caller registered in the user directory.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kasalabs/ussd-server-go/directory"
)

// ErrUnknownLocation indicates no source could place the caller.
var ErrUnknownLocation = errors.New("location: unknown")

// Resolver maps a phone number to a human-readable location description.
// Implementations return ErrUnknownLocation when the caller cannot be placed;
// any other error is an infrastructure failure.
type Resolver interface {
	Resolve(ctx context.Context, phone string) (string, error)
}

// Area is one cell-tower coverage zone in the prefix table.
type Area struct {
	Prefix    string
	Address   string
	Landmark  string
	Latitude  float64
	Longitude float64
	TowerID   string
	Network   string
}

// Description renders the area the way responders see it in an alert SMS.
func (a Area) Description() string {
	parts := []string{a.Address}
	if a.Landmark != "" {
		parts = append(parts, a.Landmark)
	}
	if a.Latitude != 0 || a.Longitude != 0 {
		parts = append(parts, fmt.Sprintf("GPS:%g,%g", a.Latitude, a.Longitude))
	}
	return strings.Join(parts, " | ")
}

// PrefixResolver places callers by longest matching phone-number prefix.
type PrefixResolver struct {
	areas []Area
}

// NewPrefixResolver builds a resolver over the given coverage table.
func NewPrefixResolver(areas []Area) *PrefixResolver {
	return &PrefixResolver{areas: areas}
}

var _ Resolver = (*PrefixResolver)(nil)

func (r *PrefixResolver) Resolve(ctx context.Context, phone string) (string, error) {
	var best *Area
	for i := range r.areas {
		a := &r.areas[i]
		if !strings.HasPrefix(phone, a.Prefix) {
			continue
		}
		if best == nil || len(a.Prefix) > len(best.Prefix) {
			best = a
		}
	}
	if best == nil {
		return "", ErrUnknownLocation
	}
	return best.Description(), nil
}

// DefaultAreas is the Nairobi pilot coverage table.
func DefaultAreas() []Area {
	return []Area{
		{
			Prefix:    "+254711",
			Address:   "Nairobi Central Business District",
			Landmark:  "Near Kenyatta Avenue",
			Latitude:  -1.2921,
			Longitude: 36.8219,
			TowerID:   "NRB_001",
			Network:   "Safaricom",
		},
		{
			Prefix:    "+254712",
			Address:   "Westlands, Nairobi",
			Landmark:  "Near Sarit Centre",
			Latitude:  -1.3032,
			Longitude: 36.7073,
			TowerID:   "WLD_002",
			Network:   "Safaricom",
		},
		{
			Prefix:    "+254720",
			Address:   "Kilimani, Nairobi",
			Landmark:  "Near Yaya Centre",
			Latitude:  -1.2833,
			Longitude: 36.8167,
			TowerID:   "KLM_003",
			Network:   "Airtel",
		},
	}
}

// DirectoryResolver places a caller at their registered profile location.
type DirectoryResolver struct {
	dir directory.Directory
}

// NewDirectoryResolver builds a resolver over the user directory.
func NewDirectoryResolver(dir directory.Directory) *DirectoryResolver {
	return &DirectoryResolver{dir: dir}
}

var _ Resolver = (*DirectoryResolver)(nil)

func (r *DirectoryResolver) Resolve(ctx context.Context, phone string) (string, error) {
	u, err := r.dir.Find(ctx, phone)
	if errors.Is(err, directory.ErrUserNotFound) {
		return "", ErrUnknownLocation
	}
	if err != nil {
		return "", err
	}
	return u.Location, nil
}

// Chain tries each resolver in order, returning the first placement. Only
// ErrUnknownLocation falls through; infrastructure errors stop the chain.
type Chain []Resolver

var _ Resolver = (Chain)(nil)

func (c Chain) Resolve(ctx context.Context, phone string) (string, error) {
	for _, r := range c {
		desc, err := r.Resolve(ctx, phone)
		if err == nil {
			return desc, nil
		}
		if !errors.Is(err, ErrUnknownLocation) {
			return "", err
		}
	}
	return "", ErrUnknownLocation
}
