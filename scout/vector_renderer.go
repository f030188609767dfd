package scout

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// Occupancy classes used by the vector renderer. Cells between the two
// thresholds are left as unknown background.
const (
	vectorOpenBelow     = 0.35
	vectorOccupiedAbove = 0.65
)

var (
	vectorUnknown  = color.RGBA{160, 160, 160, 255}
	vectorOpen     = color.RGBA{250, 250, 250, 255}
	vectorOccupied = color.RGBA{30, 30, 30, 255}
)

// VectorRenderer renders a grid snapshot as vector graphics. Coordinates are
// world units times Scale, with y growing upward.
type VectorRenderer struct {
	Scale      float64           // Canvas units (mm) per world unit
	Padding    float64           // Padding in world units
	Resolution canvas.Resolution // Resolution for PNG output
	GridLines  float64           // World spacing of dashed grid lines; 0 disables
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer() *VectorRenderer {
	return &VectorRenderer{
		Scale:      10,
		Padding:    1,
		Resolution: canvas.DPI(96),
		GridLines:  5,
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size(snap *GridSnapshot) (width, height float64) {
	minX, minY, maxX, maxY := snap.Bounds()
	width = (maxX - minX + 2*r.Padding) * r.Scale
	height = (maxY - minY + 2*r.Padding) * r.Scale
	return width, height
}

// RenderToSVG writes the map as an SVG to w
func (r *VectorRenderer) RenderToSVG(w io.Writer, snap *GridSnapshot, overlay MapOverlay) error {
	width, height := r.size(snap)
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, snap, overlay, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the map as a rasterized PNG to w
func (r *VectorRenderer) RenderToPNG(w io.Writer, snap *GridSnapshot, overlay MapOverlay) error {
	width, height := r.size(snap)
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, snap, overlay, width, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, snap *GridSnapshot, overlay MapOverlay, width, height float64) {
	minX, minY, maxX, maxY := snap.Bounds()
	toCanvas := func(p Point) (float64, float64) {
		return (p.X - minX + r.Padding) * r.Scale, (p.Y - minY + r.Padding) * r.Scale
	}
	cell := snap.CellSize * r.Scale

	fill := func(c color.RGBA) canvas.Style {
		s := canvas.DefaultStyle
		s.Fill = canvas.Paint{Color: c}
		s.Stroke = canvas.Paint{Color: canvas.Transparent}
		return s
	}

	renderer.RenderPath(canvas.Rectangle(width, height), fill(canvas.White), canvas.Identity)
	gx, gy := toCanvas(Point{X: minX, Y: minY})
	renderer.RenderPath(canvas.Rectangle(float64(snap.Cols)*cell, float64(snap.Rows)*cell).Translate(gx, gy), fill(vectorUnknown), canvas.Identity)

	// one rectangle per horizontal run of open or occupied cells
	openStyle, occupiedStyle := fill(vectorOpen), fill(vectorOccupied)
	for row := 0; row < snap.Rows; row++ {
		col := 0
		for col < snap.Cols {
			class := vectorClass(snap.At(Cell{Row: row, Col: col}))
			start := col
			for col < snap.Cols && vectorClass(snap.At(Cell{Row: row, Col: col})) == class {
				col++
			}
			if class == 0 {
				continue
			}
			style := openStyle
			if class > 0 {
				style = occupiedStyle
			}
			x, y := toCanvas(snap.CellCenter(Cell{Row: row, Col: start}))
			rect := canvas.Rectangle(float64(col-start)*cell, cell).Translate(x-cell/2, y-cell/2)
			renderer.RenderPath(rect, style, canvas.Identity)
		}
	}

	if r.GridLines > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.2
		gridStyle.Dashes = []float64{1, 1}
		for x := minX; x <= maxX; x += r.GridLines {
			p := &canvas.Path{}
			p.MoveTo(toCanvas(Point{X: x, Y: minY}))
			p.LineTo(toCanvas(Point{X: x, Y: maxY}))
			renderer.RenderPath(p, gridStyle, canvas.Identity)
		}
		for y := minY; y <= maxY; y += r.GridLines {
			p := &canvas.Path{}
			p.MoveTo(toCanvas(Point{X: minX, Y: y}))
			p.LineTo(toCanvas(Point{X: maxX, Y: y}))
			renderer.RenderPath(p, gridStyle, canvas.Identity)
		}
	}

	frontierStyle := fill(FrontierColor)
	for _, f := range overlay.Frontiers {
		for _, c := range f.Cells {
			x, y := toCanvas(snap.CellCenter(c))
			renderer.RenderPath(canvas.Rectangle(cell, cell).Translate(x-cell/2, y-cell/2), frontierStyle, canvas.Identity)
		}
		x, y := toCanvas(snap.CellCenter(f.Target))
		renderer.RenderPath(canvas.Circle(cell*0.6).Translate(x, y), fill(TargetColor), canvas.Identity)
	}

	if len(overlay.Path) > 1 {
		pathStyle := canvas.DefaultStyle
		pathStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		pathStyle.Stroke = canvas.Paint{Color: PathColor}
		pathStyle.StrokeWidth = cell * 0.3
		p := &canvas.Path{}
		for i, pt := range overlay.Path {
			x, y := toCanvas(pt)
			if i == 0 {
				p.MoveTo(x, y)
			} else {
				p.LineTo(x, y)
			}
		}
		renderer.RenderPath(p, pathStyle, canvas.Identity)
	}

	if overlay.Pose != nil {
		x, y := toCanvas(overlay.Pose.Position())
		robotStyle := fill(RobotColor)
		robotStyle.Stroke = canvas.Paint{Color: canvas.Black}
		robotStyle.StrokeWidth = cell * 0.1
		renderer.RenderPath(canvas.Circle(cell).Translate(x, y), robotStyle, canvas.Identity)

		heading := &canvas.Path{}
		heading.MoveTo(x, y)
		tip := TransformPoint(Point{X: 2 * cell}, Rotation(overlay.Pose.Heading))
		heading.LineTo(x+tip.X, y+tip.Y)
		headingStyle := canvas.DefaultStyle
		headingStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		headingStyle.Stroke = canvas.Paint{Color: canvas.Black}
		headingStyle.StrokeWidth = cell * 0.2
		renderer.RenderPath(heading, headingStyle, canvas.Identity)
	}
}

// vectorClass returns -1 for open, 1 for occupied and 0 for unknown
func vectorClass(p float64) int {
	switch {
	case p < vectorOpenBelow:
		return -1
	case p > vectorOccupiedAbove:
		return 1
	default:
		return 0
	}
}
