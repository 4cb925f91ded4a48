package palette

import (
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Resolved is the outcome of resolving one global block id.
type Resolved struct {
	Color RGB
	// Label is the block name when one was found, otherwise "block_<id>".
	Label string
	// Air voxels are never painted.
	Air bool
	// Named is set when Label came from the world or metadata palette.
	Named bool
}

// Resolver turns section voxels into colors. All of its tables are fixed at construction, so one Resolver may be
// shared by any number of goroutines.
type Resolver struct {
	colors ColorTable

	world      map[string]string
	worldLower map[string]string
	meta       []string
	metaLower  []string
}

// NewResolver builds a resolver. world maps decimal global ids to block names and meta lists block names by global
// id; either may be nil.
func NewResolver(colors ColorTable, world map[string]string, meta []string) *Resolver {
	if colors == nil {
		colors = DefaultColors()
	}
	lower := cases.Lower(language.Und)
	r := &Resolver{
		colors:     colors,
		world:      world,
		worldLower: make(map[string]string, len(world)),
		meta:       meta,
		metaLower:  make([]string, len(meta)),
	}
	for id, name := range world {
		r.worldLower[id] = lower.String(name)
	}
	for i, name := range meta {
		r.metaLower[i] = lower.String(name)
	}
	return r
}

// Global maps a section-local index through the section palette. Indices outside the palette are used as global
// ids directly.
func Global(local uint32, sectionPalette []int32) int32 {
	if uint64(local) < uint64(len(sectionPalette)) {
		return sectionPalette[local]
	}
	return int32(local)
}

// Resolve returns the color and label for a global block id. It never fails: ids without a name or a configured
// color get a color derived from the id itself.
func (r *Resolver) Resolve(gid int32) Resolved {
	if gid == 0 {
		return Resolved{Air: true, Label: "air"}
	}

	name, lowerName, named := r.name(gid)
	if !named {
		return Resolved{Color: HashColor(gid), Label: fmt.Sprintf("block_%d", gid)}
	}
	if lowerName == "air" {
		return Resolved{Air: true, Label: name, Named: true}
	}
	if c, ok := r.colors.Lookup(lowerName); ok {
		return Resolved{Color: c, Label: name, Named: true}
	}
	return Resolved{Color: HashColor(gid), Label: name, Named: true}
}

// ResolveLocal resolves a voxel's section-local index. Index 0 is air in every section.
func (r *Resolver) ResolveLocal(local uint32, sectionPalette []int32) Resolved {
	if local == 0 {
		return Resolved{Air: true, Label: "air"}
	}
	return r.Resolve(Global(local, sectionPalette))
}

func (r *Resolver) name(gid int32) (name, lowerName string, ok bool) {
	key := strconv.Itoa(int(gid))
	if name, ok = r.world[key]; ok && name != "" {
		return name, r.worldLower[key], true
	}
	if gid >= 0 && int(gid) < len(r.meta) && r.meta[gid] != "" {
		return r.meta[gid], r.metaLower[gid], true
	}
	return "", "", false
}

// HashColor derives a stable color from the decimal form of gid. Each channel lands in [50, 200).
func HashColor(gid int32) RGB {
	sum := md5.Sum([]byte(strconv.Itoa(int(gid))))
	return RGB{
		R: 50 + sum[0]%150,
		G: 50 + sum[1]%150,
		B: 50 + sum[2]%150,
	}
}

// LoadWorldPalette reads the first existing {"<gid>": "<name>"} file among paths. It returns nil when none exists.
func LoadWorldPalette(paths ...string) (map[string]string, error) {
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var table map[string]string
		if err = json.Unmarshal(raw, &table); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return table, nil
	}
	return nil, nil
}

// LoadMetadataPalette reads the "palette" list of a map metadata file. It returns nil when the file or the list is
// missing.
func LoadMetadataPalette(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta struct {
		Palette []string `json:"palette"`
	}
	if err = json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return meta.Palette, nil
}
