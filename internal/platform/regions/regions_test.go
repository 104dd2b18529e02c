package regions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanko-field/delivery/internal/delivery"
	"github.com/hanko-field/delivery/internal/domain"
)

func TestDefault_ContainsEveryState(t *testing.T) {
	regions, err := Default()
	require.NoError(t, err)
	require.Len(t, regions, 37)

	table, err := delivery.NewRegionTable(regions)
	require.NoError(t, err)

	lagos, ok := table.Lookup("lagos")
	require.True(t, ok)
	require.Equal(t, "Lagos", lagos.Name)
}

func TestDefault_ZonesFromLagos(t *testing.T) {
	regions, err := Default()
	require.NoError(t, err)
	table, err := delivery.NewRegionTable(regions)
	require.NoError(t, err)
	area, err := delivery.NewServiceArea(table, "Lagos", nil)
	require.NoError(t, err)

	resolver := delivery.NewZoneResolver(table)
	cases := map[string]domain.Zone{
		"Lagos": domain.ZoneSameState,
		"Ogun":  domain.ZoneNear,
		"Oyo":   domain.ZoneNear,
		"Edo":   domain.ZoneMedium,
		"Ondo":  domain.ZoneMedium,
		"FCT":   domain.ZoneFar,
		"Kano":  domain.ZoneFar,
	}
	for dest, want := range cases {
		res, err := resolver.Resolve(area.Warehouse, dest, area)
		require.NoError(t, err, dest)
		require.Equal(t, want, res.Zone, dest)
	}
}

func TestParse(t *testing.T) {
	regions, err := Parse([]byte("regions:\n  - name: \" Lagos \"\n    lat: 6.5\n    lon: 3.4\n"))
	require.NoError(t, err)
	require.Equal(t, []domain.Region{{Name: "Lagos", Latitude: 6.5, Longitude: 3.4}}, regions)

	_, err = Parse([]byte(""))
	require.ErrorIs(t, err, ErrEmptyTable)

	_, err = Parse([]byte("regions: []\n"))
	require.ErrorIs(t, err, ErrEmptyTable)

	_, err = Parse([]byte("regions:\n  - name: Lagos\n    lat: 6.5\n    lng: 3.4\n"))
	require.Error(t, err)

	_, err = Parse([]byte("regions:\n  - name: Lagos\n    lat: 6.5\n"))
	require.ErrorContains(t, err, "missing coordinates")

	_, err = Parse([]byte("regions:\n  - lat: 6.5\n    lon: 3.4\n"))
	require.ErrorContains(t, err, "no name")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("regions:\n  - name: Accra\n    lat: 5.6\n    lon: -0.19\n"), 0o600))

	regions, err := Load(path)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	require.Equal(t, "Accra", regions[0].Name)

	regions, err = Load("  ")
	require.NoError(t, err)
	require.Len(t, regions, 37)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
