package tagtree

import (
	"bytes"
	"encoding/binary"
)

// Section is one 32x32x16 slice of a chunk column.
type Section struct {
	// Palette maps section-local indices to global block ids.
	Palette []int32
	// Data is the packed voxel blob, untouched.
	Data []byte
}

var (
	sectionsMarker = []byte("Sections\x00")
	blockMarker    = []byte("Block\x00")
	paletteMarker  = []byte("Palette\x00")
	dataMarker     = []byte("Data\x00")
)

// ExtractSections walks a decoded chunk to its Sections list and returns every section with voxel data, in
// storage order (bottom to top).
func ExtractSections(root *Node) []Section {
	list := root.FindContainer("Sections")
	if list == nil {
		return nil
	}

	var sections []Section
	for _, child := range list.Children {
		block := child.Find("Block")
		if block == nil {
			continue
		}
		if section, ok := sectionFromBlock(block); ok {
			sections = append(sections, section)
		}
	}
	return sections
}

func sectionFromBlock(block *Node) (Section, bool) {
	if block.Tag == TagBlob {
		return ParseBlock(block.Bytes)
	}
	if !block.Tag.IsContainer() {
		return Section{}, false
	}

	var section Section
	if palette := block.Child("Palette"); palette != nil {
		if palette.Tag == TagBlob {
			section.Palette = decodePalette(palette.Bytes)
		} else {
			for _, entry := range palette.Children {
				if entry.Tag == TagInt {
					section.Palette = append(section.Palette, entry.Int)
				}
			}
		}
	}
	if data := block.Child("Data"); data != nil && data.Tag == TagBlob {
		section.Data = data.Bytes
	}
	return section, len(section.Data) > 0
}

// ParseBlock reads the Palette and Data members out of a Block blob. The blob nests its own record stream, so the
// members are located by their name markers; each marker is followed by a little-endian size and the payload.
// Payloads running past the blob are clamped.
func ParseBlock(blob []byte) (Section, bool) {
	var section Section

	paletteStart, paletteEnd := -1, -1
	if idx := bytes.Index(blob, paletteMarker); idx >= 0 {
		if payload, start, ok := sizedPayload(blob, idx+len(paletteMarker)); ok {
			section.Palette = decodePalette(payload)
			paletteStart, paletteEnd = idx, start+len(payload)
		}
	}

	from := 0
	for from < len(blob) {
		idx := bytes.Index(blob[from:], dataMarker)
		if idx < 0 {
			break
		}
		idx += from
		if idx >= paletteStart && idx < paletteEnd {
			from = paletteEnd
			continue
		}
		if payload, _, ok := sizedPayload(blob, idx+len(dataMarker)); ok {
			section.Data = payload
		}
		break
	}

	return section, len(section.Data) > 0
}

// ScanSections finds sections by scanning the raw decompressed buffer for the Sections and Block markers. It is the
// fallback for frames whose tree lost sync before reaching the Sections list.
func ScanSections(raw []byte) []Section {
	idx := bytes.Index(raw, sectionsMarker)
	if idx < 0 {
		return nil
	}
	list, _, ok := sizedPayload(raw, idx+len(sectionsMarker))
	if !ok {
		return nil
	}

	var sections []Section
	cursor := 0
	for cursor < len(list) {
		b := bytes.Index(list[cursor:], blockMarker)
		if b < 0 {
			break
		}
		b += cursor
		sizeAt := b + len(blockMarker)
		size, ok := readU32(list, sizeAt)
		if !ok {
			break
		}
		start := sizeAt + 4
		if b > 0 && TagID(list[b-1]) == TagBlob {
			start += 4
		}
		if start > len(list) {
			break
		}
		end := start + int(size)
		if end > len(list) {
			end = len(list)
		}
		if section, ok := ParseBlock(list[start:end]); ok {
			sections = append(sections, section)
		}
		cursor = end
	}
	return sections
}

// decodePalette reads a palette payload. A clean stream of named int records is taken as is; anything else is
// swept as consecutive little-endian int32 values.
func decodePalette(payload []byte) []int32 {
	if ids, ok := namedInts(payload); ok {
		return ids
	}
	ids := make([]int32, 0, len(payload)/4)
	for i := 0; i+4 <= len(payload); i += 4 {
		ids = append(ids, int32(binary.LittleEndian.Uint32(payload[i:])))
	}
	return ids
}

// namedInts accepts a payload only when it is wholly consumed by int records with printable names. Raw int32
// palettes whose first id happens to start with the int tag byte fail one of those checks.
func namedInts(payload []byte) ([]int32, bool) {
	if len(payload) == 0 || TagID(payload[0]) != TagInt {
		return nil, false
	}
	node, err := DecodeRecords(payload)
	if err != nil || len(node.Children) == 0 {
		return nil, false
	}
	consumed := 0
	ids := make([]int32, 0, len(node.Children))
	for _, child := range node.Children {
		if child.Tag != TagInt || !printableName(child.Name) {
			return nil, false
		}
		consumed += 1 + len(child.Name) + 1 + 4
		ids = append(ids, child.Int)
	}
	if consumed != len(payload) {
		return nil, false
	}
	return ids, true
}

func printableName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7E {
			return false
		}
	}
	return true
}

func sizedPayload(buf []byte, pos int) ([]byte, int, bool) {
	size, ok := readU32(buf, pos)
	if !ok {
		return nil, 0, false
	}
	start := pos + 4
	end := start + int(size)
	if end > len(buf) {
		end = len(buf)
	}
	return buf[start:end], start, true
}
