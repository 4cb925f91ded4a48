// Package regiontest builds synthetic region files for tests.
package regiontest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/nexcore/regionmap/region"
	"github.com/nexcore/regionmap/tagtree"
)

// Signature is written into the header of every built file.
const Signature = "HytaleIndexedStorage"

// Builder assembles a region file in memory. Frames are laid out one after another, each starting on a sector
// boundary after the sector table.
type Builder struct {
	Base    int64
	Version uint32
	frames  map[int][]byte
}

func NewBuilder() *Builder {
	return &Builder{Base: region.BaseOffsetRenderer, Version: 1, frames: make(map[int][]byte)}
}

// SetChunk stores root, encoded and zstd-compressed, in slot index.
func (b *Builder) SetChunk(index int, root *tagtree.Node) error {
	payload, err := tagtree.Marshal(root)
	if err != nil {
		return err
	}
	frame, err := Compress(payload)
	if err != nil {
		return err
	}
	return b.SetFrame(index, frame)
}

// SetFrame stores frame verbatim in slot index.
func (b *Builder) SetFrame(index int, frame []byte) error {
	if index < 0 || index >= region.SlotCount {
		return fmt.Errorf("regiontest: slot %d out of range", index)
	}
	b.frames[index] = frame
	return nil
}

// Bytes lays out the file.
func (b *Builder) Bytes() []byte {
	var out bytes.Buffer

	var sig [20]byte
	copy(sig[:], Signature)
	out.Write(sig[:])
	_ = binary.Write(&out, binary.BigEndian, b.Version)
	out.Write(make([]byte, b.Base-int64(out.Len())))

	indices := make([]int, 0, len(b.frames))
	for idx := range b.frames {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var table [region.SlotCount]uint32
	var data bytes.Buffer
	sector := uint32(1)
	for _, idx := range indices {
		frame := b.frames[idx]
		table[idx] = sector
		data.Write(frame)
		sectors := (len(frame) + region.SectorSize - 1) / region.SectorSize
		if sectors == 0 {
			sectors = 1
		}
		data.Write(make([]byte, sectors*region.SectorSize-len(frame)))
		sector += uint32(sectors)
	}

	_ = binary.Write(&out, binary.BigEndian, table[:])
	out.Write(data.Bytes())
	return out.Bytes()
}

// WriteFile writes the built file to path.
func (b *Builder) WriteFile(path string) error {
	return os.WriteFile(path, b.Bytes(), 0o644)
}

// Compress wraps payload in a single zstd frame.
func Compress(payload []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(payload, nil), nil
}

// SectionSpec describes one section of a synthetic chunk.
type SectionSpec struct {
	Palette []int32
	Data    []byte
}

// BlockBlob encodes a section's Palette and Data members the way they are nested inside a Block blob.
func BlockBlob(spec SectionSpec) []byte {
	var buf bytes.Buffer
	enc := tagtree.NewEncoder(&buf)

	pal := make([]byte, 4*len(spec.Palette))
	for i, id := range spec.Palette {
		binary.LittleEndian.PutUint32(pal[i*4:], uint32(id))
	}
	_ = enc.WriteSized(tagtree.TagList, "Palette", pal)
	_ = enc.WriteSized(tagtree.TagList, "Data", spec.Data)
	return buf.Bytes()
}

// Chunk builds a chunk tree holding sections in the given order, bottom first.
func Chunk(sections ...SectionSpec) *tagtree.Node {
	list := tagtree.NewList("Sections")
	for i, spec := range sections {
		list.Children = append(list.Children, tagtree.NewStruct("Section",
			tagtree.NewInt("Y", int32(i)),
			tagtree.NewBlob("Block", BlockBlob(spec)),
		))
	}
	return tagtree.NewStruct("",
		tagtree.NewStruct("Components",
			tagtree.NewStruct("ChunkColumn", list),
			tagtree.NewByte("Version", 1),
		),
	)
}
