package mapgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/nexcore/regionmap/palette"
	"github.com/nexcore/regionmap/region"
	"github.com/nexcore/regionmap/render"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Config is built once per session and shared read-only by every render.
type Config struct {
	Layout Layout
	Region region.Config
	Render render.Config
	// RegionWorkers bounds how many regions GenerateWorldMap renders at once. Zero means runtime.NumCPU().
	RegionWorkers int
	// PreviewTileSize is the edge, in pixels, of one region in map_preview.png. Zero disables the preview.
	PreviewTileSize int
	// PreviewMaxSide caps both sides of map_preview.png; the tile edge shrinks to fit. Zero means DefaultPreviewMaxSide.
	PreviewMaxSide int
}

// DefaultPreviewMaxSide keeps map_preview.png at or below 256 MiB of RGBA pixels.
const DefaultPreviewMaxSide = 8192

// DefaultConfig returns a configuration rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		Layout:          Layout{DataDir: dataDir},
		Region:          region.DefaultConfig(),
		RegionWorkers:   runtime.NumCPU(),
		PreviewTileSize: 64,
		PreviewMaxSide:  DefaultPreviewMaxSide,
	}
}

// Service implements the map operations on top of a data directory.
type Service struct {
	cfg     Config
	colors  palette.ColorTable
	logger  log.Logger
	metrics *render.Metrics
}

// NewService loads the block color table and returns a ready service. logger and metrics may be nil.
func NewService(cfg Config, logger log.Logger, metrics *render.Metrics) (*Service, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.RegionWorkers <= 0 {
		cfg.RegionWorkers = runtime.NumCPU()
	}
	if cfg.PreviewMaxSide <= 0 {
		cfg.PreviewMaxSide = DefaultPreviewMaxSide
	}
	colors, err := palette.LoadColorTable(cfg.Layout.BlockColorsPath())
	if err != nil {
		return nil, fmt.Errorf("loading block colors: %w", err)
	}
	return &Service{cfg: cfg, colors: colors, logger: logger, metrics: metrics}, nil
}

// TileResult is the outcome of RenderRegionTile.
type TileResult struct {
	Status    string       `json:"status"`
	Metadata  TileMetadata `json:"metadata"`
	ImagePath string       `json:"tile_path"`
	// Cached is set when the tile was served from the cache without decoding the region.
	Cached bool `json:"cached"`
}

// RenderRegionTile renders region (rx, rz) of a save and stores the tile image and sidecar in the save's map cache.
// An empty world selects one as ResolveWorld does. Unless force is set, a cached tile at least as new as the region
// file is returned as is. A region that opens but has no decodable chunk still produces a background tile.
func (s *Service) RenderRegionTile(ctx context.Context, pack, save string, rx, rz int32, world string, force bool) (*TileResult, error) {
	world, err := s.cfg.Layout.ResolveWorld(pack, save, world)
	if err != nil {
		return nil, err
	}
	regionPath := s.cfg.Layout.RegionPath(pack, save, world, rx, rz)
	info, err := os.Stat(regionPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, regionPath)
	}
	if err != nil {
		return nil, err
	}

	imagePath, sidecarPath := s.cfg.Layout.TilePaths(pack, save, rx, rz)
	if !force && tileFresh(imagePath, sidecarPath, info.ModTime()) {
		if meta, err := readSidecar(sidecarPath); err == nil && meta.World == world {
			level.Debug(s.logger).Log("msg", "tile cached", "rx", rx, "rz", rz, "world", world)
			return &TileResult{Status: StatusSuccess, Metadata: meta, ImagePath: imagePath, Cached: true}, nil
		}
	}

	start := time.Now()
	tile, err := s.renderRegion(ctx, pack, save, world, regionPath)
	if err != nil {
		s.metrics.ObserveRegion(StatusError, time.Since(start))
		return nil, err
	}

	meta := TileMetadata{
		RX:             rx,
		RZ:             rz,
		World:          world,
		ChunksRendered: tile.ChunksRendered,
		Palette:        tile.Palette,
	}
	if err = writeTile(imagePath, sidecarPath, tile.Image, meta); err != nil {
		s.metrics.ObserveRegion(StatusError, time.Since(start))
		return nil, fmt.Errorf("writing tile %d.%d: %w", rx, rz, err)
	}

	took := time.Since(start)
	s.metrics.ObserveRegion(StatusSuccess, took)
	level.Info(s.logger).Log(
		"msg", "rendered region",
		"rx", rx, "rz", rz, "world", world,
		"size", humanize.Bytes(uint64(info.Size())),
		"chunks", tile.ChunksRendered,
		"blocks", len(tile.Palette),
		"took", took,
	)
	return &TileResult{Status: StatusSuccess, Metadata: meta, ImagePath: imagePath}, nil
}

func (s *Service) renderRegion(ctx context.Context, pack, save, world, regionPath string) (*render.Tile, error) {
	resolver := s.resolver(pack, save, world)
	reader, err := region.Open(regionPath, s.cfg.Region)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	level.Debug(s.logger).Log(
		"msg", "opened region",
		"path", regionPath,
		"signature", reader.Header.Signature,
		"version", reader.Header.Version,
		"base", reader.Table.Base,
		"slots", reader.Table.Len(),
	)

	renderer := render.New(resolver, s.cfg.Render, log.With(s.logger, "region", regionPath), s.metrics)
	return renderer.Render(ctx, reader)
}

// resolver loads the palettes that name global ids for this world. Unreadable palettes are logged and skipped; the
// renderer falls back to id-derived colors.
func (s *Service) resolver(pack, save, world string) *palette.Resolver {
	worldPalette, err := palette.LoadWorldPalette(s.cfg.Layout.WorldPalettePaths(pack, save, world)...)
	if err != nil {
		level.Warn(s.logger).Log("msg", "ignoring world palette", "err", err)
		worldPalette = nil
	}
	metaPalette, err := palette.LoadMetadataPalette(s.cfg.Layout.MetadataPath(pack, save))
	if err != nil {
		level.Warn(s.logger).Log("msg", "ignoring metadata palette", "err", err)
		metaPalette = nil
	}
	return palette.NewResolver(s.colors, worldPalette, metaPalette)
}
