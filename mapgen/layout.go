// Package mapgen drives region tile rendering for saved worlds and maintains the on-disk tile cache.
package mapgen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const regionSuffix = ".region.bin"

var (
	ErrWorldNotFound  = errors.New("mapgen: world not found")
	ErrRegionNotFound = errors.New("mapgen: region file not found")
	ErrChunksNotFound = errors.New("mapgen: chunks directory not found")
)

// preferredWorlds are picked, in order, when no world is named.
var preferredWorlds = []string{"zone3_taiga1_world", "default_world", "default"}

// Layout locates packs, saves, worlds and the tile cache below a data directory.
type Layout struct {
	DataDir string
}

func (l Layout) SaveDir(pack, save string) string {
	return filepath.Join(l.DataDir, "packs", pack, "saves", save)
}

func (l Layout) WorldsDir(pack, save string) string {
	return filepath.Join(l.SaveDir(pack, save), "universe", "worlds")
}

func (l Layout) ChunksDir(pack, save, world string) string {
	return filepath.Join(l.WorldsDir(pack, save), world, "chunks")
}

func (l Layout) RegionPath(pack, save, world string, rx, rz int32) string {
	return filepath.Join(l.ChunksDir(pack, save, world), RegionName(rx, rz))
}

func (l Layout) BlockColorsPath() string {
	return filepath.Join(l.DataDir, "block_colors.json")
}

// WorldPalettePaths lists the global id palettes to try, world-local first.
func (l Layout) WorldPalettePaths(pack, save, world string) []string {
	return []string{
		filepath.Join(l.WorldsDir(pack, save), world, "static_data", "block_palette.json"),
		filepath.Join(l.SaveDir(pack, save), "block_palette.json"),
	}
}

func (l Layout) MetadataPath(pack, save string) string {
	return filepath.Join(l.SaveDir(pack, save), "map_metadata.json")
}

func (l Layout) CacheDir(pack, save string) string {
	return filepath.Join(l.SaveDir(pack, save), "map_cache")
}

// TilePaths returns the image and sidecar paths of a cached tile.
func (l Layout) TilePaths(pack, save string, rx, rz int32) (image, sidecar string) {
	base := filepath.Join(l.CacheDir(pack, save), fmt.Sprintf("%d.%d", rx, rz))
	return base + ".png", base + ".json"
}

func (l Layout) PreviewPath(pack, save string) string {
	return filepath.Join(l.SaveDir(pack, save), "map_preview.png")
}

// ResolveWorld picks the world to render. A named world wins when it exists; otherwise the preferred names are
// tried, then the first world in sorted order.
func (l Layout) ResolveWorld(pack, save, world string) (string, error) {
	worlds, err := l.worldNames(pack, save)
	if err != nil {
		return "", err
	}
	has := func(name string) bool {
		i := sort.SearchStrings(worlds, name)
		return i < len(worlds) && worlds[i] == name
	}

	if world != "" && has(world) {
		return world, nil
	}
	for _, name := range preferredWorlds {
		if has(name) {
			return name, nil
		}
	}
	if len(worlds) > 0 {
		return worlds[0], nil
	}
	return "", ErrWorldNotFound
}

func (l Layout) worldNames(pack, save string) ([]string, error) {
	entries, err := os.ReadDir(l.WorldsDir(pack, save))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrWorldNotFound
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RegionName is the file name of region (rx, rz).
func RegionName(rx, rz int32) string {
	return fmt.Sprintf("%d.%d%s", rx, rz, regionSuffix)
}

// ParseRegionName extracts the region coordinates from a name such as "-1.2.region.bin".
func ParseRegionName(name string) (rx, rz int32, ok bool) {
	stem, found := strings.CutSuffix(name, regionSuffix)
	if !found {
		return 0, 0, false
	}
	return parseCoords(stem)
}

func parseCoords(stem string) (rx, rz int32, ok bool) {
	xs, zs, found := strings.Cut(stem, ".")
	if !found {
		return 0, 0, false
	}
	x, err := strconv.ParseInt(xs, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	z, err := strconv.ParseInt(zs, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return int32(x), int32(z), true
}
