// Package voxel expands packed section voxel blobs into section-local palette indices.
package voxel

const (
	// Width and Depth are the horizontal extent of a section; Height its vertical extent.
	Width  = 32
	Depth  = 32
	Height = 16
	// Volume is the number of voxels in one section.
	Volume = Width * Depth * Height

	// Len12 is the blob length of a fully populated 12-bit section, Len8 of an 8-bit one and Len6 of a 6-bit one.
	Len12 = Volume * 3 / 2
	Len8  = Volume
	Len6  = Volume * 3 / 4
)

// Indices holds the section-local palette index of every voxel, addressed by Index.
type Indices [Volume]uint32

// Index returns the position of (lx, ly, lz) in Indices.
func Index(lx, ly, lz int) int {
	return lx + lz*Width + ly*Width*Depth
}

// At returns the index stored for (lx, ly, lz).
func (ids *Indices) At(lx, ly, lz int) uint32 {
	return ids[Index(lx, ly, lz)]
}

// Unpack selects a density from the blob length and expands it. Blobs of at least Len12 bytes are 12-bit, exactly
// Len8 bytes are 8-bit, everything else is treated as 6-bit.
func Unpack(data []byte) *Indices {
	switch {
	case len(data) >= Len12:
		return Unpack12(data)
	case len(data) == Len8:
		return Unpack8(data)
	default:
		return Unpack6(data)
	}
}

// Unpack12 expands pairs of 12-bit values from every three bytes. Incomplete groups leave zeros.
func Unpack12(data []byte) *Indices {
	ids := new(Indices)
	for i := 0; i < Volume/2; i++ {
		off := i * 3
		if off+2 >= len(data) {
			break
		}
		b1, b2, b3 := uint32(data[off]), uint32(data[off+1]), uint32(data[off+2])
		ids[i*2] = b1 | (b2&0x0F)<<8
		ids[i*2+1] = b2>>4 | b3<<4
	}
	return ids
}

// Unpack8 copies one index per byte.
func Unpack8(data []byte) *Indices {
	ids := new(Indices)
	for i := 0; i < Volume && i < len(data); i++ {
		ids[i] = uint32(data[i])
	}
	return ids
}

// Unpack6 expands four 6-bit values from every three bytes. Incomplete groups leave zeros.
func Unpack6(data []byte) *Indices {
	ids := new(Indices)
	for i := 0; i < Volume/4; i++ {
		off := i * 3
		if off+2 >= len(data) {
			break
		}
		b0, b1, b2 := uint32(data[off]), uint32(data[off+1]), uint32(data[off+2])
		ids[i*4] = b0 & 0x3F
		ids[i*4+1] = (b0>>6 | b1<<2) & 0x3F
		ids[i*4+2] = (b1>>4 | b2<<4) & 0x3F
		ids[i*4+3] = (b2 >> 2) & 0x3F
	}
	return ids
}
