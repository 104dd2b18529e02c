package delivery

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/hanko-field/delivery/internal/domain"
)

const earthRadiusKm = 6371.0

// RegionTable indexes known regions by case-folded name.
type RegionTable struct {
	regions map[string]domain.Region
}

// NewRegionTable builds a lookup table, rejecting blank or duplicate names.
func NewRegionTable(regions []domain.Region) (RegionTable, error) {
	table := RegionTable{regions: make(map[string]domain.Region, len(regions))}
	for _, region := range regions {
		key := foldName(region.Name)
		if key == "" {
			return RegionTable{}, fmt.Errorf("%w: region name is required", ErrInvalidServiceArea)
		}
		if region.Latitude < -90 || region.Latitude > 90 || region.Longitude < -180 || region.Longitude > 180 {
			return RegionTable{}, fmt.Errorf("%w: region %s has out of range coordinates", ErrInvalidServiceArea, region.Name)
		}
		if _, exists := table.regions[key]; exists {
			return RegionTable{}, fmt.Errorf("%w: duplicate region %s", ErrInvalidServiceArea, region.Name)
		}
		region.Name = strings.TrimSpace(region.Name)
		table.regions[key] = region
	}
	return table, nil
}

// Lookup finds a region by name, ignoring case.
func (t RegionTable) Lookup(name string) (domain.Region, bool) {
	region, ok := t.regions[foldName(name)]
	return region, ok
}

// Names returns region names in sorted order.
func (t RegionTable) Names() []string {
	names := make([]string, 0, len(t.regions))
	for _, region := range t.regions {
		names = append(names, region.Name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of regions in the table.
func (t RegionTable) Len() int {
	return len(t.regions)
}

// NewServiceArea validates that the warehouse and every service region exist in the table.
// An empty region list selects every region in the table.
func NewServiceArea(table RegionTable, warehouse string, regions []string) (domain.ServiceArea, error) {
	home, ok := table.Lookup(warehouse)
	if !ok {
		return domain.ServiceArea{}, fmt.Errorf("%w: warehouse region %q is unknown", ErrInvalidServiceArea, warehouse)
	}
	if len(regions) == 0 {
		regions = table.Names()
	}
	names := make([]string, 0, len(regions))
	seen := make(map[string]struct{}, len(regions))
	for _, name := range regions {
		region, ok := table.Lookup(name)
		if !ok {
			return domain.ServiceArea{}, fmt.Errorf("%w: service region %q is unknown", ErrInvalidServiceArea, name)
		}
		key := foldName(region.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, region.Name)
	}
	return domain.ServiceArea{Warehouse: home.Name, Regions: names}, nil
}

// ZoneResolution is the distance and zone of a destination relative to the warehouse.
type ZoneResolution struct {
	Destination string
	DistanceKm  float64
	Zone        domain.Zone
}

// ZoneResolver classifies destinations against a fixed coordinate table.
type ZoneResolver struct {
	table RegionTable
}

// NewZoneResolver constructs a resolver over the supplied table.
func NewZoneResolver(table RegionTable) *ZoneResolver {
	return &ZoneResolver{table: table}
}

// Table exposes the resolver's region table.
func (r *ZoneResolver) Table() RegionTable {
	return r.table
}

// Resolve computes the great-circle distance from warehouse to destination and its zone.
func (r *ZoneResolver) Resolve(warehouse, destination string, area domain.ServiceArea) (ZoneResolution, error) {
	if !serves(area, destination) {
		return ZoneResolution{}, fmt.Errorf("%w: %q", ErrUnsupportedDestination, destination)
	}
	dest, ok := r.table.Lookup(destination)
	if !ok {
		return ZoneResolution{}, fmt.Errorf("%w: no coordinates for %q", ErrUnsupportedDestination, destination)
	}
	home, ok := r.table.Lookup(warehouse)
	if !ok {
		return ZoneResolution{}, fmt.Errorf("%w: warehouse region %q is unknown", ErrInvalidServiceArea, warehouse)
	}

	distance := Haversine(home, dest)
	return ZoneResolution{
		Destination: dest.Name,
		DistanceKm:  distance,
		Zone:        classifyZone(home, dest, distance),
	}, nil
}

func classifyZone(home, dest domain.Region, distanceKm float64) domain.Zone {
	if foldName(home.Name) == foldName(dest.Name) {
		return domain.ZoneSameState
	}
	for _, bound := range zoneBounds {
		if distanceKm <= bound.maxKm {
			return bound.zone
		}
	}
	return domain.ZoneFar
}

// Haversine returns the great-circle distance between two regions in kilometres.
func Haversine(a, b domain.Region) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func serves(area domain.ServiceArea, destination string) bool {
	key := foldName(destination)
	if key == "" {
		return false
	}
	for _, name := range area.Regions {
		if foldName(name) == key {
			return true
		}
	}
	return false
}

// foldName normalises region names for comparison. A Caser is not safe for concurrent use.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
