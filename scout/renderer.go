package scout

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay colors for map rendering
var (
	FrontierColor = color.RGBA{255, 140, 0, 255} // Dark orange
	TargetColor   = color.RGBA{220, 20, 60, 255} // Crimson
	PathColor     = color.RGBA{30, 144, 255, 255}
	RobotColor    = color.RGBA{0, 128, 0, 255}
	BackgroundBG  = color.RGBA{240, 240, 240, 255}
)

// MapOverlay is what gets drawn on top of the occupancy grid.
type MapOverlay struct {
	Pose      *Pose
	Frontiers []Frontier
	Path      []Point
	Status    Status
	Cycle     int
}

// OverlayFromReport builds an overlay from an explorer cycle report
func OverlayFromReport(r CycleReport) MapOverlay {
	pose := r.Pose
	return MapOverlay{
		Pose:      &pose,
		Frontiers: r.Frontiers,
		Path:      r.Waypoints,
		Status:    r.Status,
		Cycle:     r.Cycle,
	}
}

// MapRenderer draws a grid snapshot as a greyscale raster: white is open,
// black is occupied and mid grey is unknown.
type MapRenderer struct {
	Scale   int  // Pixels per cell
	Padding int  // Border around the grid in pixels
	Legend  bool // Draw the status line and legend
}

// NewMapRenderer creates a renderer with default settings
func NewMapRenderer() *MapRenderer {
	return &MapRenderer{Scale: 4, Padding: 20, Legend: true}
}

// Render draws snap and the overlay into a new image.
func (r *MapRenderer) Render(snap *GridSnapshot, overlay MapOverlay) *image.RGBA {
	scale := max(r.Scale, 1)
	width := snap.Cols*scale + 2*r.Padding
	height := snap.Rows*scale + 2*r.Padding

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, BackgroundBG)
		}
	}

	// cell -> top-left pixel; image rows grow downward, grid rows grow upward
	toImage := func(c Cell) (int, int) {
		return c.Col*scale + r.Padding, (snap.Rows-1-c.Row)*scale + r.Padding
	}
	fillCell := func(c Cell, col color.RGBA) {
		x0, y0 := toImage(c)
		for dy := 0; dy < scale; dy++ {
			for dx := 0; dx < scale; dx++ {
				img.SetRGBA(x0+dx, y0+dy, col)
			}
		}
	}

	for row := 0; row < snap.Rows; row++ {
		for col := 0; col < snap.Cols; col++ {
			c := Cell{Row: row, Col: col}
			fillCell(c, occupancyGrey(snap.At(c)))
		}
	}

	for _, f := range overlay.Frontiers {
		for _, c := range f.Cells {
			if snap.InBounds(c) {
				fillCell(c, FrontierColor)
			}
		}
		if snap.InBounds(f.Target) {
			x, y := toImage(f.Target)
			drawSquare(img, x+scale/2, y+scale/2, scale+2, TargetColor)
		}
	}

	// world -> pixel for continuous overlays
	toPixel := func(p Point) Cell {
		x := (p.X-snap.Anchor.X)/snap.CellSize*float64(scale) + float64(r.Padding)
		y := float64(height-r.Padding) - (p.Y-snap.Anchor.Y)/snap.CellSize*float64(scale)
		return Cell{Row: int(math.Floor(y)), Col: int(math.Floor(x))}
	}
	plot := func(c Cell, col color.RGBA) bool {
		if c.Col >= 0 && c.Col < width && c.Row >= 0 && c.Row < height {
			img.SetRGBA(c.Col, c.Row, col)
		}
		return true
	}

	for i := 1; i < len(overlay.Path); i++ {
		TraceLine(toPixel(overlay.Path[i-1]), toPixel(overlay.Path[i]), func(c Cell) bool {
			return plot(c, PathColor)
		})
	}

	if overlay.Pose != nil {
		center := toPixel(overlay.Pose.Position())
		radius := max(scale, 3)
		drawCircle(img, center.Col, center.Row, radius, RobotColor)
		tip := overlay.Pose.Position()
		tip.X += 2 * snap.CellSize * math.Cos(overlay.Pose.Heading)
		tip.Y += 2 * snap.CellSize * math.Sin(overlay.Pose.Heading)
		TraceLine(center, toPixel(tip), func(c Cell) bool {
			return plot(c, RobotColor)
		})
	}

	if r.Legend {
		r.drawLegend(img, overlay)
	}
	return img
}

// occupancyGrey maps an occupancy probability to a grey level
func occupancyGrey(p float64) color.RGBA {
	v := uint8(math.Round(255 * (1 - p)))
	return color.RGBA{v, v, v, 255}
}

func (r *MapRenderer) drawLegend(img *image.RGBA, overlay MapOverlay) {
	status := overlay.Status
	if status == "" {
		status = StatusIdle
	}
	drawText(img, 4, 13, fmt.Sprintf("cycle %d  %s  frontiers %d", overlay.Cycle, status, len(overlay.Frontiers)), color.RGBA{0, 0, 0, 255})

	y := img.Bounds().Max.Y - 4
	x := 4
	for _, entry := range []struct {
		label string
		c     color.RGBA
	}{
		{"frontier", FrontierColor},
		{"target", TargetColor},
		{"path", PathColor},
		{"robot", RobotColor},
	} {
		drawSquare(img, x+4, y-4, 8, entry.c)
		drawText(img, x+12, y, entry.label, color.RGBA{0, 0, 0, 255})
		x += 12 + 7*len(entry.label) + 10
	}
}

// RenderPNG encodes the rendered map as PNG
func (r *MapRenderer) RenderPNG(w io.Writer, snap *GridSnapshot, overlay MapOverlay) error {
	return png.Encode(w, r.Render(snap, overlay))
}

// SavePNG renders the map to a PNG file
func (r *MapRenderer) SavePNG(path string, snap *GridSnapshot, overlay MapOverlay) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.RenderPNG(f, snap, overlay); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if (image.Point{X: x, Y: y}).In(img.Bounds()) {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			x, y := cx+dx, cy+dy
			if (image.Point{X: x, Y: y}).In(img.Bounds()) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified baseline position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
