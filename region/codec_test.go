package region_test

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexcore/regionmap/region"
	"github.com/nexcore/regionmap/region/regiontest"
)

func framed(body []byte) []byte {
	out := make([]byte, 4, 4+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(body)))
	return append(out, body...)
}

func noise(n int) []byte {
	rng := rand.New(rand.NewSource(7))
	out := make([]byte, n)
	rng.Read(out)
	return out
}

func TestDecompress(t *testing.T) {
	payload := framed([]byte("tag tree bytes"))
	frame, err := regiontest.Compress(payload)
	require.NoError(t, err)

	out, err := region.Decompress(frame, 0)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestDecompressIgnoresBytesAfterPayload(t *testing.T) {
	payload := framed([]byte("first"))
	frame, err := regiontest.Compress(payload)
	require.NoError(t, err)
	next, err := regiontest.Compress(framed([]byte("second frame")))
	require.NoError(t, err)

	frame = append(frame, next...)
	frame = append(frame, 0xDE, 0xAD, 0xBE, 0xEF)

	out, err := region.Decompress(frame, 0)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestDecompressBadMagic(t *testing.T) {
	_, err := region.Decompress([]byte{0x00, 0x01, 0x02, 0x03, 0x04}, 0)
	require.ErrorIs(t, err, region.ErrBadMagic)

	_, err = region.Decompress(nil, 0)
	require.ErrorIs(t, err, region.ErrBadMagic)
}

func TestDecompressSizeExceeded(t *testing.T) {
	frame, err := regiontest.Compress(framed(make([]byte, 2000)))
	require.NoError(t, err)

	_, err = region.Decompress(frame, 1000)
	require.ErrorIs(t, err, region.ErrSizeExceeded)
	require.ErrorIs(t, err, region.ErrDecompressFailed)

	_, err = region.Decompress(frame, 2004)
	require.NoError(t, err)
}

func TestDecompressTruncated(t *testing.T) {
	frame, err := regiontest.Compress(framed(noise(8000)))
	require.NoError(t, err)

	_, err = region.Decompress(frame[:len(frame)/2], 0)
	require.ErrorIs(t, err, region.ErrDecompressFailed)
}

func TestDecompressDeclaredSizeLongerThanStream(t *testing.T) {
	payload := make([]byte, 4, 20)
	binary.LittleEndian.PutUint32(payload, 500)
	payload = append(payload, "too short"...)
	frame, err := regiontest.Compress(payload)
	require.NoError(t, err)

	_, err = region.Decompress(frame, 0)
	require.ErrorIs(t, err, region.ErrDecompressFailed)
}

func TestDecompressRejectsOversizedWindow(t *testing.T) {
	// frame header declaring a 64 MiB window, then one raw last block holding a zero total_size
	frame := append([]byte(nil), region.FrameMagic...)
	frame = append(frame, 0x00, 0x80)
	frame = append(frame, 0x21, 0x00, 0x00)
	frame = append(frame, 0x00, 0x00, 0x00, 0x00)

	_, err := region.Decompress(frame, 0)
	require.ErrorIs(t, err, region.ErrDecompressFailed)
}

func TestDecompressReusesDecoders(t *testing.T) {
	good, err := regiontest.Compress(framed([]byte("payload")))
	require.NoError(t, err)
	broken, err := regiontest.Compress(framed(noise(8000)))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err = region.Decompress(broken[:len(broken)/2], 0)
		require.ErrorIs(t, err, region.ErrDecompressFailed)

		out, err := region.Decompress(good, 0)
		require.NoError(t, err)
		require.Equal(t, framed([]byte("payload")), out)
	}
}
