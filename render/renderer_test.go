package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/nexcore/regionmap/palette"
	"github.com/nexcore/regionmap/region"
	"github.com/nexcore/regionmap/region/regiontest"
	"github.com/nexcore/regionmap/tagtree"
	"github.com/nexcore/regionmap/voxel"
)

var (
	red   = palette.RGB{R: 200}
	green = palette.RGB{G: 200}
	stone = palette.RGB{R: 120, G: 120, B: 120}
)

func testResolver() *palette.Resolver {
	colors := palette.ColorTable{"red": red, "green": green, "stone": stone}
	return palette.NewResolver(colors, map[string]string{"1": "red", "2": "green", "7": "stone", "9": "air"}, nil)
}

func at(img *image.RGBA, x, z int) color.RGBA {
	return img.RGBAAt(x, z)
}

func TestPaintChunkUpperSectionWins(t *testing.T) {
	lower := new(voxel.Indices)
	upper := new(voxel.Indices)
	// column (0,0): both sections; column (1,0): lower only; column (2,0): upper only
	lower[voxel.Index(0, 15, 0)] = 1
	lower[voxel.Index(1, 4, 0)] = 1
	upper[voxel.Index(0, 0, 0)] = 1
	upper[voxel.Index(2, 9, 0)] = 1

	sections := []tagtree.Section{
		{Palette: []int32{0, 1}, Data: voxel.Pack8(lower)},
		{Palette: []int32{0, 2}, Data: voxel.Pack8(upper)},
	}
	img := NewCanvas()
	seen := make(map[string]struct{})
	require.True(t, PaintChunk(img, 0, sections, testResolver(), seen))

	require.Equal(t, green.RGBA(), at(img, 0, 0))
	require.Equal(t, red.RGBA(), at(img, 1, 0))
	require.Equal(t, green.RGBA(), at(img, 2, 0))
	require.Equal(t, Background, at(img, 3, 0))
	require.Equal(t, map[string]struct{}{"red": {}, "green": {}}, seen)
}

func TestPaintChunkTopOfSection(t *testing.T) {
	ids := new(voxel.Indices)
	ids[voxel.Index(5, 2, 6)] = 1
	ids[voxel.Index(5, 10, 6)] = 2
	ids[voxel.Index(5, 12, 6)] = 3 // gid 9 is named air

	sections := []tagtree.Section{{Palette: []int32{0, 1, 2, 9}, Data: voxel.Pack12(ids)}}
	img := NewCanvas()
	require.True(t, PaintChunk(img, 33, sections, testResolver(), map[string]struct{}{}))

	require.Equal(t, green.RGBA(), at(img, 32+5, 32+6))
}

func TestPaintChunkAllAir(t *testing.T) {
	sections := []tagtree.Section{
		{Palette: []int32{0, 9}, Data: voxel.Pack6(voxel.Fill(1))},
		{Palette: nil, Data: voxel.Pack8(voxel.Fill(0))},
	}
	img := NewCanvas()
	seen := make(map[string]struct{})
	require.False(t, PaintChunk(img, 0, sections, testResolver(), seen))
	require.Empty(t, seen)
	require.Equal(t, Background, at(img, 0, 0))
}

func TestPaintChunkLocalZeroIsAir(t *testing.T) {
	sections := []tagtree.Section{{Palette: []int32{7, 1}, Data: voxel.Pack8(voxel.Fill(0))}}
	img := NewCanvas()
	require.False(t, PaintChunk(img, 0, sections, testResolver(), map[string]struct{}{}))
	require.Equal(t, Background, at(img, 0, 0))
}

func TestPaintChunkUnresolvedID(t *testing.T) {
	sections := []tagtree.Section{{Palette: []int32{0, 4321}, Data: voxel.Pack8(voxel.Fill(1))}}
	img := NewCanvas()
	seen := make(map[string]struct{})
	require.True(t, PaintChunk(img, 1023, sections, testResolver(), seen))

	require.Equal(t, palette.HashColor(4321).RGBA(), at(img, TileSize-1, TileSize-1))
	require.Contains(t, seen, "block_4321")
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func stoneRegion(t *testing.T, slots ...int) *regiontest.Builder {
	t.Helper()
	b := regiontest.NewBuilder()
	for _, idx := range slots {
		require.NoError(t, b.SetChunk(idx, regiontest.Chunk(regiontest.SectionSpec{
			Palette: []int32{0, 7},
			Data:    voxel.Pack8(voxel.Fill(1)),
		})))
	}
	return b
}

func openRegion(t *testing.T, b *regiontest.Builder) *region.Reader {
	t.Helper()
	data := b.Bytes()
	reader, err := region.NewReader(bytes.NewReader(data), int64(len(data)), region.DefaultConfig())
	require.NoError(t, err)
	return reader
}

func TestRenderSingleChunk(t *testing.T) {
	reader := openRegion(t, stoneRegion(t, 33))

	tile, err := New(testResolver(), Config{Workers: 2}, nil, nil).Render(context.Background(), reader)
	require.NoError(t, err)
	require.Equal(t, 1, tile.ChunksRendered)
	require.Equal(t, []string{"stone"}, tile.Palette)
	require.True(t, tile.Rendered.Test(33))
	require.Equal(t, uint(1), tile.Rendered.Count())

	for z := 0; z < TileSize; z++ {
		for x := 0; x < TileSize; x++ {
			want := Background
			if x >= 32 && x < 64 && z >= 32 && z < 64 {
				want = stone.RGBA()
			}
			if got := at(tile.Image, x, z); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, z, got, want)
			}
		}
	}
}

func TestRenderSkipsBrokenSlots(t *testing.T) {
	b := stoneRegion(t, 0, 2, 5)
	garbage := append([]byte(nil), region.FrameMagic...)
	garbage = append(garbage, 0xFF, 0xFF, 0xFF, 0xFF)
	require.NoError(t, b.SetFrame(1, garbage))
	empty, err := regiontest.Compress([]byte{4, 0, 0, 0, 0x10, 'x', 0, 1})
	require.NoError(t, err)
	require.NoError(t, b.SetFrame(3, empty))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	tile, err := New(testResolver(), Config{}, nil, metrics).Render(context.Background(), openRegion(t, b))
	require.NoError(t, err)

	require.Equal(t, 3, tile.ChunksRendered)
	require.False(t, tile.Rendered.Test(1))
	require.False(t, tile.Rendered.Test(3))
	require.Equal(t, Background, at(tile.Image, 32, 0))
	require.Equal(t, stone.RGBA(), at(tile.Image, 64, 0))

	require.Equal(t, 3.0, counterValue(t, metrics.SlotsRendered))
	require.Equal(t, 1.0, counterValue(t, metrics.SlotsSkipped.WithLabelValues(reasonDecompress)))
	require.Equal(t, 1.0, counterValue(t, metrics.SlotsSkipped.WithLabelValues(reasonNoSections)))
}

func TestRenderCancelled(t *testing.T) {
	reader := openRegion(t, stoneRegion(t, 0, 1, 2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tile, err := New(testResolver(), Config{Workers: 1}, nil, nil).Render(ctx, reader)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, tile.ChunksRendered)
	require.Equal(t, Background, at(tile.Image, 0, 0))
}

func TestDecodeSectionsFallsBackToScan(t *testing.T) {
	raw, err := tagtree.Marshal(regiontest.Chunk(regiontest.SectionSpec{Palette: []int32{0, 7}, Data: []byte{1}}))
	require.NoError(t, err)
	// corrupt the first record tag so the tree decoder loses sync immediately
	raw[4] = 0x7F

	sections, err := DecodeSections(raw)
	require.Error(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, []int32{0, 7}, sections[0].Palette)
}
