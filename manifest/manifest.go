// Package manifest folds rendered tile records into per-world bounds.
package manifest

// DefaultWorld is used for records that carry no world id.
const DefaultWorld = "default_world"

// Record identifies one rendered region tile.
type Record struct {
	RX    int32
	RZ    int32
	World string
}

type Region struct {
	X int32 `json:"x"`
	Z int32 `json:"z"`
}

// World holds the region bounds of one world, inclusive on both ends.
type World struct {
	MinX    int32    `json:"min_x"`
	MaxX    int32    `json:"max_x"`
	MinZ    int32    `json:"min_z"`
	MaxZ    int32    `json:"max_z"`
	Regions []Region `json:"regions"`
}

type Manifest struct {
	Worlds map[string]*World `json:"worlds"`
}

func New() *Manifest {
	return &Manifest{Worlds: make(map[string]*World)}
}

// Aggregate folds records into a fresh manifest.
func Aggregate(records []Record) *Manifest {
	m := New()
	for _, rec := range records {
		m.Add(rec)
	}
	return m
}

// Add folds one record into the manifest.
func (m *Manifest) Add(rec Record) {
	id := rec.World
	if id == "" {
		id = DefaultWorld
	}

	w, ok := m.Worlds[id]
	if !ok {
		w = &World{MinX: rec.RX, MaxX: rec.RX, MinZ: rec.RZ, MaxZ: rec.RZ}
		m.Worlds[id] = w
	}
	w.Regions = append(w.Regions, Region{X: rec.RX, Z: rec.RZ})
	w.MinX = min(w.MinX, rec.RX)
	w.MaxX = max(w.MaxX, rec.RX)
	w.MinZ = min(w.MinZ, rec.RZ)
	w.MaxZ = max(w.MaxZ, rec.RZ)
}

// Width and Depth return the extent of the world in regions. They are computed in int64 so that bounds spanning the
// whole int32 range do not wrap.
func (w *World) Width() int64 { return int64(w.MaxX) - int64(w.MinX) + 1 }

func (w *World) Depth() int64 { return int64(w.MaxZ) - int64(w.MinZ) + 1 }
