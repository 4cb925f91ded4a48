// Package render paints top-down region tiles from decoded chunk sections.
package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"runtime"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/remeh/sizedwaitgroup"
	"github.com/willf/bitset"
	"golang.org/x/image/draw"

	"github.com/nexcore/regionmap/palette"
	"github.com/nexcore/regionmap/region"
	"github.com/nexcore/regionmap/tagtree"
	"github.com/nexcore/regionmap/voxel"
)

// TileSize is the width and height of a region tile in pixels, one pixel per voxel column.
const TileSize = region.GridWidth * voxel.Width

// Background is the color of every pixel no chunk painted.
var Background = color.RGBA{R: 20, G: 20, B: 25, A: 0xFF}

// Slot skip reasons, used as metric labels.
const (
	reasonBadMagic   = "bad_magic"
	reasonDecompress = "decompress_failed"
	reasonTooLarge   = "size_exceeded"
	reasonRead       = "read_error"
	reasonNoSections = "no_sections"
	reasonEmpty      = "empty"
)

type Config struct {
	// Workers bounds how many slots are decoded at once. Zero means runtime.NumCPU().
	Workers int
	// MaxDecompressed bounds a decompressed slot. Zero means region.DefaultMaxDecompressed.
	MaxDecompressed int
}

// Tile is a rendered region.
type Tile struct {
	Image *image.RGBA
	// ChunksRendered counts slots that painted at least one pixel.
	ChunksRendered int
	// Palette lists every block label painted, sorted.
	Palette []string
	// Rendered marks the grid index of every slot that painted a pixel.
	Rendered *bitset.BitSet
}

// Renderer is safe for concurrent use; it holds no per-region state.
type Renderer struct {
	resolver *palette.Resolver
	cfg      Config
	logger   log.Logger
	metrics  *Metrics
}

func New(resolver *palette.Resolver, cfg Config, logger log.Logger, metrics *Metrics) *Renderer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxDecompressed <= 0 {
		cfg.MaxDecompressed = region.DefaultMaxDecompressed
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Renderer{resolver: resolver, cfg: cfg, logger: logger, metrics: metrics}
}

// NewCanvas returns a tile-sized image filled with Background.
func NewCanvas() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)
	return img
}

type slotResult struct {
	painted bool
	labels  map[string]struct{}
}

// Render decodes and paints every occupied slot of reader. Slots that fail to decode stay at background color and
// never fail the render. If ctx is cancelled no further slots are started; the partially painted tile is returned
// together with the context's error.
func (r *Renderer) Render(ctx context.Context, reader *region.Reader) (*Tile, error) {
	img := NewCanvas()
	slots := reader.Table.Slots()
	results := make([]slotResult, len(slots))

	var err error
	wg := sizedwaitgroup.New(r.cfg.Workers)
	for i, slot := range slots {
		// AddWithContext picks randomly when a slot is free and ctx is already done.
		if err = ctx.Err(); err != nil {
			break
		}
		if err = wg.AddWithContext(ctx); err != nil {
			break
		}
		go func(i int, slot region.Slot) {
			defer wg.Done()
			results[i] = r.renderSlot(img, reader, slot)
		}(i, slot)
	}
	wg.Wait()

	tile := &Tile{Image: img, Rendered: bitset.New(region.SlotCount)}
	seen := make(map[string]struct{})
	for i, res := range results {
		if !res.painted {
			continue
		}
		tile.ChunksRendered++
		tile.Rendered.Set(uint(slots[i].Index))
		for label := range res.labels {
			seen[label] = struct{}{}
		}
	}
	tile.Palette = sortedLabels(seen)
	return tile, err
}

func (r *Renderer) renderSlot(img *image.RGBA, reader *region.Reader, slot region.Slot) slotResult {
	raw, err := reader.ReadChunk(slot, r.cfg.MaxDecompressed)
	if err != nil {
		r.skip(slot, skipReason(err), err)
		return slotResult{}
	}

	sections, err := DecodeSections(raw)
	if err != nil {
		level.Debug(r.logger).Log("msg", "tag tree lost sync", "slot", slot.Index, "err", err)
	}
	if len(sections) == 0 {
		r.skip(slot, reasonNoSections, nil)
		return slotResult{}
	}

	labels := make(map[string]struct{})
	if !PaintChunk(img, slot.Index, sections, r.resolver, labels) {
		r.skip(slot, reasonEmpty, nil)
		return slotResult{}
	}
	r.metrics.slotRendered()
	return slotResult{painted: true, labels: labels}
}

func (r *Renderer) skip(slot region.Slot, reason string, err error) {
	r.metrics.slotSkipped(reason)
	level.Debug(r.logger).Log("msg", "skipping slot", "slot", slot.Index, "x", slot.X(), "z", slot.Z(), "reason", reason, "err", err)
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, region.ErrBadMagic):
		return reasonBadMagic
	case errors.Is(err, region.ErrSizeExceeded):
		return reasonTooLarge
	case errors.Is(err, region.ErrDecompressFailed):
		return reasonDecompress
	default:
		return reasonRead
	}
}

// DecodeSections decodes a decompressed slot and extracts its sections. If the tree holds no Sections list the raw
// buffer is scanned instead. The error, if any, is the tree decoder's *tagtree.ParseError and is informational.
func DecodeSections(raw []byte) ([]tagtree.Section, error) {
	root, err := tagtree.Decode(raw)
	sections := tagtree.ExtractSections(root)
	if len(sections) == 0 {
		sections = tagtree.ScanSections(raw)
	}
	return sections, err
}

// PaintChunk paints one chunk column into img at the block for gridIndex. Sections are visited in storage order,
// bottom to top, and in each section the first non-air voxel from the top of every column is painted, so the
// highest non-air voxel of the whole column ends up visible. Labels of painted blocks are added to seen. It reports
// whether any pixel was painted.
func PaintChunk(img *image.RGBA, gridIndex int, sections []tagtree.Section, resolver *palette.Resolver, seen map[string]struct{}) bool {
	baseX := (gridIndex % region.GridWidth) * voxel.Width
	baseZ := (gridIndex / region.GridWidth) * voxel.Depth
	cache := make(map[int32]palette.Resolved)

	painted := false
	for _, section := range sections {
		ids := voxel.Unpack(section.Data)
		for lz := 0; lz < voxel.Depth; lz++ {
			for lx := 0; lx < voxel.Width; lx++ {
				px, pz := baseX+lx, baseZ+lz
				if px >= TileSize || pz >= TileSize {
					continue
				}
				for ly := voxel.Height - 1; ly >= 0; ly-- {
					local := ids.At(lx, ly, lz)
					// Local index 0 is air even when palette[0] names a block; sections always reserve it.
					if local == 0 {
						continue
					}
					gid := palette.Global(local, section.Palette)
					res, ok := cache[gid]
					if !ok {
						res = resolver.Resolve(gid)
						cache[gid] = res
					}
					if res.Air {
						continue
					}
					img.SetRGBA(px, pz, res.Color.RGBA())
					seen[res.Label] = struct{}{}
					painted = true
					break
				}
			}
		}
	}
	return painted
}

func sortedLabels(set map[string]struct{}) []string {
	labels := make([]string, 0, len(set))
	for label := range set {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
