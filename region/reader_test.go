package region_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexcore/regionmap/region"
	"github.com/nexcore/regionmap/region/regiontest"
	"github.com/nexcore/regionmap/voxel"
)

func stoneChunk(t *testing.T, b *regiontest.Builder, index int) {
	t.Helper()
	require.NoError(t, b.SetChunk(index, regiontest.Chunk(regiontest.SectionSpec{
		Palette: []int32{0, 7},
		Data:    voxel.Pack8(voxel.Fill(1)),
	})))
}

func openBytes(t *testing.T, data []byte) (*region.Reader, error) {
	t.Helper()
	return region.NewReader(bytes.NewReader(data), int64(len(data)), region.DefaultConfig())
}

func TestReaderLocatesRendererBase(t *testing.T) {
	b := regiontest.NewBuilder()
	stoneChunk(t, b, 5)
	stoneChunk(t, b, 1023)

	reader, err := openBytes(t, b.Bytes())
	require.NoError(t, err)
	require.Equal(t, region.BaseOffsetRenderer, reader.Table.Base)
	require.Equal(t, regiontest.Signature, reader.Header.Signature)
	require.Equal(t, uint32(1), reader.Header.Version)

	slots := reader.Table.Slots()
	require.Len(t, slots, 2)
	require.Equal(t, 5, slots[0].Index)
	require.Equal(t, region.BaseOffsetRenderer+region.SectorSize, slots[0].Offset)
	require.Equal(t, 1023, slots[1].Index)
	require.Equal(t, 31, slots[1].X())
	require.Equal(t, 31, slots[1].Z())
	require.True(t, reader.Table.Occupied(5))
	require.False(t, reader.Table.Occupied(6))
}

func TestReaderLocatesProbeBase(t *testing.T) {
	b := regiontest.NewBuilder()
	b.Base = region.BaseOffsetProbe
	stoneChunk(t, b, 0)
	stoneChunk(t, b, 40)

	reader, err := openBytes(t, b.Bytes())
	require.NoError(t, err)
	require.Equal(t, region.BaseOffsetProbe, reader.Table.Base)
	require.Equal(t, 2, reader.Table.Len())
}

func TestReaderEmptyTable(t *testing.T) {
	reader, err := openBytes(t, regiontest.NewBuilder().Bytes())
	require.NoError(t, err)
	require.Equal(t, 0, reader.Table.Len())
	require.Empty(t, reader.Table.Slots())
}

func TestReaderRejectsTableWithoutFrames(t *testing.T) {
	b := regiontest.NewBuilder()
	require.NoError(t, b.SetFrame(3, []byte("definitely not a zstd frame")))
	require.NoError(t, b.SetFrame(9, []byte("nor is this one")))

	_, err := openBytes(t, b.Bytes())
	require.ErrorIs(t, err, region.ErrTableUnverified)
}

func TestReaderShortFile(t *testing.T) {
	_, err := openBytes(t, make([]byte, 10))
	require.ErrorIs(t, err, region.ErrShortFile)

	_, err = openBytes(t, make([]byte, 1000))
	require.ErrorIs(t, err, region.ErrShortFile)
}

func TestReadChunk(t *testing.T) {
	b := regiontest.NewBuilder()
	stoneChunk(t, b, 12)

	reader, err := openBytes(t, b.Bytes())
	require.NoError(t, err)

	raw, err := reader.ReadChunk(reader.Table.Slots()[0], 0)
	require.NoError(t, err)
	require.Greater(t, len(raw), region.TotalSizeLen)
	require.True(t, bytes.Contains(raw, []byte("Sections\x00")))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := region.Open(t.TempDir()+"/0.0.region.bin", region.DefaultConfig())
	require.Error(t, err)
}
