// Package palette resolves section voxels to block names and colors.
package palette

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"os"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RGB is a block color. In JSON it is a three element array.
type RGB struct {
	R, G, B uint8
}

func (c RGB) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF}
}

func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]uint8{c.R, c.G, c.B})
}

func (c *RGB) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 3 {
		return fmt.Errorf("palette: color needs 3 channels, got %d", len(raw))
	}
	for _, v := range raw[:3] {
		if v < 0 || v > 255 {
			return fmt.Errorf("palette: channel %d out of range", v)
		}
	}
	c.R, c.G, c.B = uint8(raw[0]), uint8(raw[1]), uint8(raw[2])
	return nil
}

// ColorTable maps lower-cased block names to colors. It is built once per session and only read afterwards.
type ColorTable map[string]RGB

var defaultColors = ColorTable{
	"air":                {0, 0, 0},
	"stone":              {120, 120, 120},
	"soil_dirt":          {134, 96, 67},
	"grass":              {91, 142, 49},
	"grass_top":          {91, 142, 49},
	"soil_grass":         {91, 142, 49},
	"soil_grass_sunny":   {100, 160, 50},
	"water":              {63, 118, 228},
	"sand":               {219, 211, 160},
	"gravel":             {149, 145, 141},
	"wood_oak_log":       {103, 82, 49},
	"wood_oak_leaves":    {58, 95, 37},
	"wood_birch_log":     {217, 216, 203},
	"wood_birch_leaves":  {109, 138, 91},
	"wood_spruce_log":    {56, 39, 23},
	"wood_spruce_leaves": {56, 77, 52},
	"snow":               {240, 240, 240},
	"ice":                {165, 198, 239},
}

// DefaultColors returns a fresh copy of the built-in table.
func DefaultColors() ColorTable {
	table := make(ColorTable, len(defaultColors))
	for name, c := range defaultColors {
		table[name] = c
	}
	return table
}

// LoadColorTable returns the built-in table overlaid with the entries of the JSON file at path. A missing file is
// not an error.
func LoadColorTable(path string) (ColorTable, error) {
	table := DefaultColors()
	if path == "" {
		return table, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return table, nil
	}
	if err != nil {
		return table, err
	}

	var overrides map[string]RGB
	if err = json.Unmarshal(raw, &overrides); err != nil {
		return table, fmt.Errorf("%s: %w", path, err)
	}
	lower := cases.Lower(language.Und)
	for name, c := range overrides {
		table[lower.String(name)] = c
	}
	return table, nil
}

// Lookup finds a color by an already lower-cased name.
func (t ColorTable) Lookup(lowerName string) (RGB, bool) {
	c, ok := t[lowerName]
	return c, ok
}
