package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const DefaultDestination = "Kitchen"

// Destinations maps destination labels to ground-truth image paths.
type Destinations struct {
	Default string            `json:"default"`
	Paths   map[string]string `json:"destinations"`
}

// DefaultDestinations returns the built-in labels with their images
// expected under dir.
func DefaultDestinations(dir string) *Destinations {
	kitchen := filepath.Join(dir, "kitchen.png")
	meeting := filepath.Join(dir, "meetingRoom.png")
	window := filepath.Join(dir, "window.png")

	return &Destinations{
		Default: DefaultDestination,
		Paths: map[string]string{
			"Kitchen":      kitchen,
			"Meeting Room": meeting,
			"Window":       window,

			"akshata":   kitchen,
			"Akshata":   kitchen,
			"subhavee1": window,
			"Subhavee1": window,
			"elena":     meeting,
			"Elena":     meeting,

			"Kitchen Anchor":      kitchen,
			"Window Anchor":       window,
			"Meeting Room Anchor": meeting,
		},
	}
}

// LoadDestinations reads a destinations file. Relative image paths are
// resolved against the directory of the file.
func LoadDestinations(path string) (*Destinations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read destinations: %w", err)
	}

	var d Destinations
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse destinations %s: %w", path, err)
	}
	if d.Default == "" {
		d.Default = DefaultDestination
	}

	base := filepath.Dir(path)
	for label, p := range d.Paths {
		if !filepath.IsAbs(p) {
			d.Paths[label] = filepath.Join(base, p)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("destinations %s: %w", path, err)
	}
	return &d, nil
}

func (d *Destinations) Validate() error {
	if len(d.Paths) == 0 {
		return errors.New("no destinations configured")
	}
	if _, ok := d.Paths[d.Default]; !ok {
		return fmt.Errorf("default destination %q is not in the table", d.Default)
	}
	return nil
}

// Resolve returns the ground-truth path for label. Unknown labels fall
// back to the default destination with known set to false.
func (d *Destinations) Resolve(label string) (path string, known bool) {
	if p, ok := d.Paths[label]; ok {
		return p, true
	}
	return d.Paths[d.Default], false
}
