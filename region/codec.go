package region

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DefaultMaxDecompressed is the ceiling on a decompressed slot, header included.
const DefaultMaxDecompressed = 1 << 20

// MaxFrameWindow bounds the window a frame may declare. The decoder allocates its history buffer from the declared
// window before any payload is read.
const MaxFrameWindow = 8 << 20

// TotalSizeLen is the length of the little-endian size header that opens every decompressed frame.
const TotalSizeLen = 4

// FrameMagic is the zstd frame signature every slot frame must begin with.
var FrameMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var (
	ErrBadMagic         = errors.New("region: frame does not start with zstd magic")
	ErrDecompressFailed = errors.New("region: frame decompression failed")
	// ErrSizeExceeded is always reported together with ErrDecompressFailed.
	ErrSizeExceeded = errors.New("region: decompressed frame exceeds size bound")
)

// Decompress decodes the zstd frame at the start of frame. The result is the little-endian total_size header
// followed by exactly total_size payload bytes; anything the stream holds past that point is not decoded.
func Decompress(frame []byte, maxSize int) ([]byte, error) {
	if !bytes.HasPrefix(frame, FrameMagic) {
		return nil, ErrBadMagic
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxDecompressed
	}

	decoder, err := getDecoder()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	defer putDecoder(decoder)
	if err = decoder.Reset(bytes.NewReader(frame)); err != nil {
		return nil, decodeError(err, "starting frame")
	}

	var header [TotalSizeLen]byte
	if _, err = io.ReadFull(decoder, header[:]); err != nil {
		return nil, decodeError(err, "reading size header")
	}
	totalSize := binary.LittleEndian.Uint32(header[:])
	if uint64(totalSize)+TotalSizeLen > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %w: %d bytes declared, limit %d", ErrDecompressFailed, ErrSizeExceeded, totalSize, maxSize)
	}

	out := make([]byte, TotalSizeLen+int(totalSize))
	copy(out, header[:])
	if _, err = io.ReadFull(decoder, out[TotalSizeLen:]); err != nil {
		return nil, decodeError(err, fmt.Sprintf("reading %d payload bytes", totalSize))
	}
	return out, nil
}

var decoders sync.Pool

// getDecoder reuses a pooled stream decoder. Slot workers decode one frame each, so decoders are recycled rather than
// built per slot.
func getDecoder() (*zstd.Decoder, error) {
	if d, ok := decoders.Get().(*zstd.Decoder); ok {
		return d, nil
	}
	return zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxWindow(MaxFrameWindow),
	)
}

func putDecoder(d *zstd.Decoder) {
	_ = d.Reset(nil)
	decoders.Put(d)
}

func decodeError(err error, op string) error {
	if errors.Is(err, zstd.ErrWindowSizeExceeded) {
		return fmt.Errorf("%w: %w: %s: %v", ErrDecompressFailed, ErrSizeExceeded, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrDecompressFailed, op, err)
}

// ReadChunk reads and decompresses the frame of a single slot.
func (r *Reader) ReadChunk(slot Slot, maxSize int) ([]byte, error) {
	frame, err := r.ReadFrame(slot)
	if err != nil {
		return nil, err
	}
	return Decompress(frame, maxSize)
}
