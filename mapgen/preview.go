package mapgen

import (
	"bytes"
	"image"
	"image/png"

	"github.com/go-kit/log/level"
	"golang.org/x/image/draw"

	"github.com/nexcore/regionmap/manifest"
	"github.com/nexcore/regionmap/render"
)

// writePreview scales every rendered tile down to PreviewTileSize and lays them out on one image, north-west
// region first. Regions without a tile stay at background color.
func (s *Service) writePreview(pack, save string, regions []manifest.Region) error {
	records := make([]manifest.Record, len(regions))
	for i, r := range regions {
		records[i] = manifest.Record{RX: r.X, RZ: r.Z}
	}
	bounds := manifest.Aggregate(records).Worlds[manifest.DefaultWorld]

	edge := previewEdge(int64(s.cfg.PreviewTileSize), bounds.Width(), bounds.Depth(), int64(s.cfg.PreviewMaxSide))
	if edge == 0 {
		level.Warn(s.logger).Log("msg", "skipping map preview, regions too far apart",
			"width", bounds.Width(), "depth", bounds.Depth(), "max_side", s.cfg.PreviewMaxSide)
		return nil
	}
	if edge < int64(s.cfg.PreviewTileSize) {
		level.Info(s.logger).Log("msg", "shrinking map preview tiles", "edge", edge)
	}
	preview := image.NewRGBA(image.Rect(0, 0, int(bounds.Width()*edge), int(bounds.Depth()*edge)))
	draw.Draw(preview, preview.Bounds(), image.NewUniform(render.Background), image.Point{}, draw.Src)

	for _, r := range regions {
		imagePath, _ := s.cfg.Layout.TilePaths(pack, save, r.X, r.Z)
		tile, err := readTileImage(imagePath)
		if err != nil {
			level.Warn(s.logger).Log("msg", "preview missing tile", "rx", r.X, "rz", r.Z, "err", err)
			continue
		}
		x := int((int64(r.X) - int64(bounds.MinX)) * edge)
		z := int((int64(r.Z) - int64(bounds.MinZ)) * edge)
		draw.ApproxBiLinear.Scale(preview, image.Rect(x, z, x+int(edge), z+int(edge)), tile, tile.Bounds(), draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, preview); err != nil {
		return err
	}
	return writeFileAtomic(s.cfg.Layout.PreviewPath(pack, save), buf.Bytes())
}

// previewEdge shrinks edge until the longer side of a width x depth mosaic fits in maxSide pixels. Zero means even
// one pixel per region does not fit.
func previewEdge(edge, width, depth, maxSide int64) int64 {
	longest := max(width, depth)
	if longest <= 0 || edge <= 0 {
		return 0
	}
	if longest*edge > maxSide {
		edge = maxSide / longest
	}
	return edge
}
