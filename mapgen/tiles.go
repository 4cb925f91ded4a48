package mapgen

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// TileMetadata is the JSON sidecar stored next to every tile image.
type TileMetadata struct {
	RX             int32    `json:"rx"`
	RZ             int32    `json:"rz"`
	World          string   `json:"world"`
	ChunksRendered int      `json:"chunks_rendered"`
	Palette        []string `json:"palette"`
}

// MapMetadata is the world-level summary written after a full map generation. Palette is owned by whoever supplies
// the by-index block list; generation only carries it over.
type MapMetadata struct {
	World           string   `json:"world"`
	RegionsRendered int      `json:"regions_rendered"`
	RegionsFailed   int      `json:"regions_failed"`
	Palette         []string `json:"palette,omitempty"`
}

func writeTile(imagePath, sidecarPath string, img image.Image, meta TileMetadata) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	if err := writeFileAtomic(imagePath, buf.Bytes()); err != nil {
		return err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return writeFileAtomic(sidecarPath, raw)
}

func readSidecar(path string) (TileMetadata, error) {
	var meta TileMetadata
	raw, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(raw, &meta)
	return meta, err
}

func readTileImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return png.Decode(file)
}

// tileFresh reports whether both cached files exist and are not older than the region file.
func tileFresh(imagePath, sidecarPath string, regionModified time.Time) bool {
	for _, path := range []string{imagePath, sidecarPath} {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().Before(regionModified) {
			return false
		}
	}
	return true
}

// writeMapMetadata replaces the world summary, carrying over an existing palette list.
func writeMapMetadata(path string, meta MapMetadata) error {
	if raw, err := os.ReadFile(path); err == nil {
		var previous MapMetadata
		if json.Unmarshal(raw, &previous) == nil && meta.Palette == nil {
			meta.Palette = previous.Palette
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, raw)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
