package scout

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MapMetadata is the map_server style description written next to the map image.
type MapMetadata struct {
	Image          string    `yaml:"image"`
	Resolution     float64   `yaml:"resolution"`
	Origin         []float64 `yaml:"origin,flow"`
	Negate         int       `yaml:"negate"`
	OccupiedThresh float64   `yaml:"occupied_thresh"`
	FreeThresh     float64   `yaml:"free_thresh"`
	Mode           string    `yaml:"mode"`
	Generation     uint64    `yaml:"generation"`
}

// SnapshotSource provides a consistent grid copy plus what to draw on it.
type SnapshotSource interface {
	Snapshot() (*GridSnapshot, MapOverlay)
}

// MapSaver writes the map to an output directory: map.png with one pixel per
// cell, map.yaml, and rendered view.png and view.svg.
type MapSaver struct {
	dir       string
	cfg       FrontierConfig
	raster    *MapRenderer
	vector    *VectorRenderer
	lastSaved uint64
	saved     bool
}

// NewMapSaver creates a saver writing into dir. The unknown band of cfg sets
// the free and occupied thresholds in map.yaml.
func NewMapSaver(dir string, cfg FrontierConfig) *MapSaver {
	return &MapSaver{
		dir:    dir,
		cfg:    cfg,
		raster: NewMapRenderer(),
		vector: NewVectorRenderer(),
	}
}

// Save writes all map files for snap.
func (s *MapSaver) Save(snap *GridSnapshot, overlay MapOverlay) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if err := writeFile(filepath.Join(s.dir, "map.png"), func(f *os.File) error {
		return png.Encode(f, OccupancyImage(snap))
	}); err != nil {
		return err
	}

	meta := MapMetadata{
		Image:          "map.png",
		Resolution:     snap.CellSize,
		Origin:         []float64{snap.Anchor.X, snap.Anchor.Y, 0},
		OccupiedThresh: s.cfg.UnknownUpper,
		FreeThresh:     s.cfg.UnknownLower,
		Mode:           "scale",
		Generation:     snap.Generation,
	}
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshaling map metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "map.yaml"), data, 0644); err != nil {
		return fmt.Errorf("writing map metadata: %w", err)
	}

	if err := s.raster.SavePNG(filepath.Join(s.dir, "view.png"), snap, overlay); err != nil {
		return fmt.Errorf("writing view.png: %w", err)
	}
	if err := writeFile(filepath.Join(s.dir, "view.svg"), func(f *os.File) error {
		return s.vector.RenderToSVG(f, snap, overlay)
	}); err != nil {
		return err
	}

	s.lastSaved = snap.Generation
	s.saved = true
	return nil
}

// SaveIfChanged saves only when the grid generation moved since the last save.
func (s *MapSaver) SaveIfChanged(src SnapshotSource) (bool, error) {
	snap, overlay := src.Snapshot()
	if s.saved && snap.Generation == s.lastSaved {
		return false, nil
	}
	return true, s.Save(snap, overlay)
}

// Run saves every interval until ctx is done, then saves once more.
func (s *MapSaver) Run(ctx context.Context, interval time.Duration, src SnapshotSource) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if _, err := s.SaveIfChanged(src); err != nil {
				Logf("[SAVE] final save failed: %v", err)
			}
			return
		case <-ticker.C:
			if saved, err := s.SaveIfChanged(src); err != nil {
				Logf("[SAVE] %v", err)
			} else if saved {
				Logf("[SAVE] map written to %s", s.dir)
			}
		}
	}
}

// OccupancyImage converts a snapshot to one grey pixel per cell, with the
// top image row holding the highest grid row. Grey is 255*(1-p).
func OccupancyImage(snap *GridSnapshot) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, snap.Cols, snap.Rows))
	for row := 0; row < snap.Rows; row++ {
		for col := 0; col < snap.Cols; col++ {
			img.SetGray(col, snap.Rows-1-row, color.Gray{Y: occupancyGrey(snap.At(Cell{Row: row, Col: col})).R})
		}
	}
	return img
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
