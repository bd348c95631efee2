package fleet

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Location is a named group of printers, such as one office floor.
type Location struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name,omitempty" yaml:"name,omitempty"`
	DefaultPrinterID string   `json:"default_printer,omitempty" yaml:"default_printer,omitempty"`
	PrinterIDs       []string `json:"printers" yaml:"printers"`
}

type directoryDocument struct {
	Version   int        `json:"version,omitempty"`
	Locations []Location `json:"locations"`
}

// Directory is the read-only set of locations, in file order.
type Directory struct {
	locations []Location
	index     map[string]int
}

// LoadDirectory reads a YAML or JSON directory file.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}
	dir, err := ParseDirectory(data)
	if err != nil {
		return nil, fmt.Errorf("invalid directory %s: %w", path, err)
	}
	return dir, nil
}

// ParseDirectory decodes YAML (JSON being a subset of it), validates the
// document against the embedded schema and then checks cross references.
func ParseDirectory(data []byte) (*Directory, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if raw == nil {
		raw = map[string]interface{}{"locations": []interface{}{}}
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateDirectory(normalized); err != nil {
		return nil, err
	}

	var doc directoryDocument
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal directory: %w", err)
	}
	return NewDirectory(doc.Locations)
}

// NewDirectory builds a directory, rejecting duplicate ids and defaults
// that are not members of their location.
func NewDirectory(locations []Location) (*Directory, error) {
	d := &Directory{
		locations: make([]Location, 0, len(locations)),
		index:     make(map[string]int, len(locations)),
	}
	for _, loc := range locations {
		if loc.ID == "" {
			return nil, fmt.Errorf("location id is required")
		}
		if _, dup := d.index[loc.ID]; dup {
			return nil, fmt.Errorf("duplicate location %q", loc.ID)
		}
		if loc.DefaultPrinterID != "" && !slices.Contains(loc.PrinterIDs, loc.DefaultPrinterID) {
			return nil, fmt.Errorf("location %q: default printer %q is not one of its printers", loc.ID, loc.DefaultPrinterID)
		}
		loc.PrinterIDs = slices.Clone(loc.PrinterIDs)
		d.index[loc.ID] = len(d.locations)
		d.locations = append(d.locations, loc)
	}
	return d, nil
}

func (d *Directory) Location(id string) (Location, bool) {
	i, ok := d.index[id]
	if !ok {
		return Location{}, false
	}
	loc := d.locations[i]
	loc.PrinterIDs = slices.Clone(loc.PrinterIDs)
	return loc, true
}

func (d *Directory) Locations() []Location {
	out := make([]Location, len(d.locations))
	for i, loc := range d.locations {
		loc.PrinterIDs = slices.Clone(loc.PrinterIDs)
		out[i] = loc
	}
	return out
}

// PrinterIDs returns every printer referenced by any location, first
// occurrence order.
func (d *Directory) PrinterIDs() []string {
	var ids []string
	for _, loc := range d.locations {
		for _, id := range loc.PrinterIDs {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// DefaultLocationID names the location built when no directory file is configured.
const DefaultLocationID = "default"

// SingleLocation puts every printer in one location whose default is the
// first printer.
func SingleLocation(printerIDs []string) (*Directory, error) {
	if len(printerIDs) == 0 {
		return NewDirectory(nil)
	}
	return NewDirectory([]Location{{
		ID:               DefaultLocationID,
		Name:             "All printers",
		DefaultPrinterID: printerIDs[0],
		PrinterIDs:       append([]string(nil), printerIDs...),
	}})
}
