// Package regions loads the coordinate table of delivery regions.
package regions

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hanko-field/delivery/internal/domain"
)

//go:embed nigeria.yaml
var defaultTable []byte

// ErrEmptyTable is returned when a region file lists no regions.
var ErrEmptyTable = errors.New("regions: table is empty")

type regionFile struct {
	Regions []regionEntry `yaml:"regions"`
}

type regionEntry struct {
	Name string   `yaml:"name"`
	Lat  *float64 `yaml:"lat"`
	Lon  *float64 `yaml:"lon"`
}

// Default returns the embedded table of Nigerian state capitals.
func Default() ([]domain.Region, error) {
	return Parse(defaultTable)
}

// Load reads the table at path, or the embedded default when path is empty.
func Load(path string) ([]domain.Region, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("regions: read %s: %w", path, err)
	}
	regions, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("regions: %s: %w", path, err)
	}
	return regions, nil
}

// Parse decodes a YAML region table. Every entry needs a name and both coordinates.
func Parse(data []byte) ([]domain.Region, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file regionFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyTable
		}
		return nil, fmt.Errorf("regions: parse table: %w", err)
	}
	if len(file.Regions) == 0 {
		return nil, ErrEmptyTable
	}

	out := make([]domain.Region, 0, len(file.Regions))
	for idx, entry := range file.Regions {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("regions: entry %d has no name", idx)
		}
		if entry.Lat == nil || entry.Lon == nil {
			return nil, fmt.Errorf("regions: %s is missing coordinates", name)
		}
		out = append(out, domain.Region{Name: name, Latitude: *entry.Lat, Longitude: *entry.Lon})
	}
	return out, nil
}
