package mapgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/nexcore/regionmap/manifest"
)

// RegionFailure records a region GenerateWorldMap could not render.
type RegionFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// WorldResult is the outcome of GenerateWorldMap.
type WorldResult struct {
	Status   string            `json:"status"`
	Rendered int               `json:"rendered"`
	Failed   int               `json:"failed"`
	World    string            `json:"world"`
	Regions  []manifest.Region `json:"regions"`
	Failures []RegionFailure   `json:"failures,omitempty"`
}

// GenerateWorldMap renders every region file of a world, then writes map_metadata.json and map_preview.png. A
// region that fails is counted and logged; it never stops the others. Only a cancelled ctx or a missing world ends
// the run early.
func (s *Service) GenerateWorldMap(ctx context.Context, pack, save, world string, force bool) (*WorldResult, error) {
	world, err := s.cfg.Layout.ResolveWorld(pack, save, world)
	if err != nil {
		return nil, err
	}
	chunksDir := s.cfg.Layout.ChunksDir(pack, save, world)
	entries, err := os.ReadDir(chunksDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrChunksNotFound, chunksDir)
	}
	if err != nil {
		return nil, err
	}

	result := &WorldResult{Status: StatusSuccess, World: world}
	var mu sync.Mutex
	fail := func(file string, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Failures = append(result.Failures, RegionFailure{File: file, Error: err.Error()})
	}

	var regionFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), regionSuffix) {
			regionFiles = append(regionFiles, entry.Name())
		}
	}
	level.Info(s.logger).Log("msg", "generating world map", "pack", pack, "save", save, "world", world, "regions", len(regionFiles))

	var g errgroup.Group
	g.SetLimit(s.cfg.RegionWorkers)
	for _, name := range regionFiles {
		rx, rz, ok := ParseRegionName(name)
		if !ok {
			fail(name, errors.New("unrecognised region file name"))
			continue
		}
		if ctx.Err() != nil {
			break
		}
		name := name
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := s.RenderRegionTile(ctx, pack, save, rx, rz, world, force); err != nil {
				level.Warn(s.logger).Log("msg", "region failed", "rx", rx, "rz", rz, "err", err)
				fail(name, err)
				return nil
			}
			mu.Lock()
			result.Regions = append(result.Regions, manifest.Region{X: rx, Z: rz})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(result.Regions, func(i, j int) bool {
		a, b := result.Regions[i], result.Regions[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].File < result.Failures[j].File })
	result.Rendered = len(result.Regions)
	result.Failed = len(result.Failures)
	level.Info(s.logger).Log("msg", "world map generated", "world", world, "rendered", result.Rendered, "failed", result.Failed)

	if err = writeMapMetadata(s.cfg.Layout.MetadataPath(pack, save), MapMetadata{
		World:           world,
		RegionsRendered: result.Rendered,
		RegionsFailed:   result.Failed,
	}); err != nil {
		level.Error(s.logger).Log("msg", "writing map metadata", "err", err)
	}
	if s.cfg.PreviewTileSize > 0 && len(result.Regions) > 0 {
		if err = s.writePreview(pack, save, result.Regions); err != nil {
			level.Error(s.logger).Log("msg", "writing map preview", "err", err)
		}
	}
	return result, nil
}

// GetMapManifest aggregates the sidecars in a save's tile cache. When world is not empty only its tiles are
// included. A save without a cache yields an empty manifest.
func (s *Service) GetMapManifest(pack, save, world string) (*manifest.Manifest, error) {
	cacheDir := s.cfg.Layout.CacheDir(pack, save)
	entries, err := os.ReadDir(cacheDir)
	if errors.Is(err, os.ErrNotExist) {
		return manifest.New(), nil
	}
	if err != nil {
		return nil, err
	}

	m := manifest.New()
	for _, entry := range entries {
		name := entry.Name()
		stem, ok := strings.CutSuffix(name, ".json")
		if entry.IsDir() || !ok || strings.HasPrefix(name, ".") {
			continue
		}
		if _, _, ok = parseCoords(stem); !ok {
			continue
		}
		meta, err := readSidecar(filepath.Join(cacheDir, name))
		if err != nil {
			level.Warn(s.logger).Log("msg", "skipping unreadable sidecar", "file", name, "err", err)
			continue
		}
		if world != "" && meta.World != world {
			continue
		}
		m.Add(manifest.Record{RX: meta.RX, RZ: meta.RZ, World: meta.World})
	}
	return m, nil
}

// WorldInfo describes one world of a save.
type WorldInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HasChunks bool   `json:"has_chunks"`
}

// ListWorlds returns the worlds of a save in sorted order. A save without worlds yields an empty list.
func (s *Service) ListWorlds(pack, save string) ([]WorldInfo, error) {
	names, err := s.cfg.Layout.worldNames(pack, save)
	if errors.Is(err, ErrWorldNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	worlds := make([]WorldInfo, 0, len(names))
	for _, name := range names {
		chunks, _ := os.ReadDir(s.cfg.Layout.ChunksDir(pack, save, name))
		worlds = append(worlds, WorldInfo{ID: name, Name: name, HasChunks: len(chunks) > 0})
	}
	return worlds, nil
}
