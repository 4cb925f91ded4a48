package region

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/willf/bitset"
)

const (
	// SlotCount is the number of chunk columns in a region (32x32).
	SlotCount = 1024
	// GridWidth is the width and depth of the slot grid.
	GridWidth = 32
	// SectorSize is the unit sector indices are expressed in.
	SectorSize = 4096

	// HeaderSize covers the signature and version fields at the start of the file.
	HeaderSize    = 24
	signatureSize = 20

	// BaseOffsetRenderer is the table base the map renderer has always used.
	BaseOffsetRenderer int64 = 40
	// BaseOffsetProbe is the table base assumed by the header inspection tools.
	BaseOffsetProbe int64 = 32

	// MaxFrameRead bounds how many bytes are read for a single slot frame.
	MaxFrameRead = 256 * 1024
	// DefaultProbeLimit is how many nonzero entries are checked per candidate base.
	DefaultProbeLimit = 32
)

var ErrShortFile = errors.New("region: file too short for header and sector table")
var ErrTableUnverified = errors.New("region: no sector table base points at compressed frames")

// Header is the fixed preamble of a region file. Its fields are informational only.
type Header struct {
	Signature string
	Version   uint32
}

// Config controls how the sector table is located.
type Config struct {
	// BaseOffsets are the candidate table bases, in order of preference.
	BaseOffsets []int64
	// ProbeLimit bounds the number of nonzero entries checked per candidate.
	ProbeLimit int
}

// DefaultConfig returns the stock candidate bases and probe window.
func DefaultConfig() Config {
	return Config{
		BaseOffsets: []int64{BaseOffsetRenderer, BaseOffsetProbe},
		ProbeLimit:  DefaultProbeLimit,
	}
}

// Slot is one occupied chunk column: its grid index and absolute byte offset.
type Slot struct {
	Index  int
	Offset int64
}

// X returns the column of the slot within the region grid.
func (s Slot) X() int { return s.Index % GridWidth }

// Z returns the row of the slot within the region grid.
func (s Slot) Z() int { return s.Index / GridWidth }

// Table is a verified sector table.
type Table struct {
	Base     int64
	Entries  [SlotCount]uint32
	occupied *bitset.BitSet
}

// Slots returns the occupied slots in grid order. Empty entries are omitted.
func (t *Table) Slots() []Slot {
	slots := make([]Slot, 0, t.occupied.Count())
	for i, ok := t.occupied.NextSet(0); ok; i, ok = t.occupied.NextSet(i + 1) {
		slots = append(slots, Slot{
			Index:  int(i),
			Offset: int64(t.Entries[i])*SectorSize + t.Base,
		})
	}
	return slots
}

// Occupied reports whether the slot at grid index idx holds a chunk.
func (t *Table) Occupied(idx int) bool {
	return idx >= 0 && idx < SlotCount && t.occupied.Test(uint(idx))
}

// Len returns the number of occupied slots.
func (t *Table) Len() int {
	return int(t.occupied.Count())
}

// Reader reads a region file's header, sector table and slot frames. Reads go through io.ReaderAt, so a Reader may be
// shared by concurrent slot workers once it has been constructed.
type Reader struct {
	source io.ReaderAt
	size   int64
	Name   string
	Header Header
	Table  *Table
}

// Open opens the region file at path and verifies its sector table.
func Open(path string, cfg Config) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	reader, err := NewReader(file, info.Size(), cfg)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	reader.Name = file.Name()
	return reader, nil
}

// NewReader creates a Reader over source. If source is an io.Closer, ownership is transferred to the reader.
func NewReader(source io.ReaderAt, size int64, cfg Config) (reader *Reader, err error) {
	if len(cfg.BaseOffsets) == 0 {
		cfg.BaseOffsets = DefaultConfig().BaseOffsets
	}
	if cfg.ProbeLimit <= 0 {
		cfg.ProbeLimit = DefaultProbeLimit
	}

	reader = &Reader{source: source, size: size}
	if err = reader.readHeader(); err != nil {
		return nil, err
	}
	reader.Table, err = reader.locateTable(cfg)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

func (r *Reader) readHeader() error {
	if r.size < HeaderSize {
		return ErrShortFile
	}
	raw := make([]byte, HeaderSize)
	if _, err := r.source.ReadAt(raw, 0); err != nil {
		return err
	}

	var header struct {
		Signature [signatureSize]byte
		Version   uint32
	}
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, &header); err != nil {
		return err
	}
	r.Header = Header{
		Signature: string(bytes.TrimRight(header.Signature[:], "\x00")),
		Version:   header.Version,
	}
	return nil
}

func (r *Reader) readTableAt(base int64) (*Table, error) {
	if base+SlotCount*4 > r.size {
		return nil, ErrShortFile
	}
	raw := make([]byte, SlotCount*4)
	if _, err := r.source.ReadAt(raw, base); err != nil {
		return nil, err
	}

	table := &Table{Base: base, occupied: bitset.New(SlotCount)}
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, table.Entries[:]); err != nil {
		return nil, err
	}
	for i, entry := range table.Entries {
		if entry != 0 {
			table.occupied.Set(uint(i))
		}
	}
	return table, nil
}

// locateTable reads the table at every candidate base and keeps the one whose entries most often point at a frame
// magic. The winner must hold a strict majority of its probed entries.
func (r *Reader) locateTable(cfg Config) (*Table, error) {
	var (
		best      *Table
		bestHits  = -1
		firstRead *Table
		lastErr   error
	)
	for _, base := range cfg.BaseOffsets {
		table, err := r.readTableAt(base)
		if err != nil {
			lastErr = err
			continue
		}
		if firstRead == nil {
			firstRead = table
		}

		hits, probed := r.probe(table, cfg.ProbeLimit)
		if probed == 0 || hits*2 <= probed {
			continue
		}
		if hits > bestHits {
			best, bestHits = table, hits
		}
	}

	if best != nil {
		return best, nil
	}
	if firstRead == nil {
		return nil, lastErr
	}
	if firstRead.Len() == 0 {
		return firstRead, nil
	}
	return nil, ErrTableUnverified
}

func (r *Reader) probe(table *Table, limit int) (hits, probed int) {
	magic := make([]byte, len(FrameMagic))
	for _, slot := range table.Slots() {
		if probed == limit {
			break
		}
		probed++
		if slot.Offset+int64(len(magic)) > r.size {
			continue
		}
		if _, err := r.source.ReadAt(magic, slot.Offset); err != nil {
			continue
		}
		if bytes.Equal(magic, FrameMagic) {
			hits++
		}
	}
	return
}

// ReadFrame returns the raw bytes at a slot's offset, bounded by MaxFrameRead and the end of the file.
func (r *Reader) ReadFrame(slot Slot) ([]byte, error) {
	if slot.Offset >= r.size {
		return nil, fmt.Errorf("slot %d: offset %d beyond end of file: %w", slot.Index, slot.Offset, ErrBadMagic)
	}
	n := r.size - slot.Offset
	if n > MaxFrameRead {
		n = MaxFrameRead
	}
	frame := make([]byte, n)
	if _, err := r.source.ReadAt(frame, slot.Offset); err != nil && err != io.EOF {
		return nil, err
	}
	return frame, nil
}

// Size returns the size of the underlying file in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

func (r *Reader) Close() error {
	if closer, ok := r.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
