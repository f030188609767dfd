package scout

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// LineString converts world points to an orb.LineString
func LineString(points []Point) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orb.Point{p.X, p.Y}
	}
	return ls
}

// pointsFromLineString converts an orb.LineString back to world points.
func pointsFromLineString(ls orb.LineString) []Point {
	out := make([]Point, len(ls))
	for i, p := range ls {
		out[i] = Point{X: p[0], Y: p[1]}
	}
	return out
}

// SimplifyWaypoints applies Douglas-Peucker to a world path. Staircase grid
// paths collapse to their corner points; the endpoints are always kept.
func SimplifyWaypoints(points []Point, tolerance float64) []Point {
	if len(points) < 3 || tolerance <= 0 {
		return append([]Point(nil), points...)
	}
	simplified := simplify.DouglasPeucker(tolerance).Simplify(LineString(points))
	ls, ok := simplified.(orb.LineString)
	if !ok || len(ls) < 2 {
		return append([]Point(nil), points...)
	}
	return pointsFromLineString(ls)
}

// PathLength returns the world length of a polyline
func PathLength(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	return planar.Length(LineString(points))
}

// FrontiersGeoJSON exports frontiers as MultiPoint features of cell centers
// with the median and target as properties. Features keep the ranking order.
func FrontiersGeoJSON(frontiers []Frontier, g *OccupancyGrid) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, f := range frontiers {
		mp := make(orb.MultiPoint, len(f.Cells))
		for j, c := range f.Cells {
			p := g.CellCenter(c)
			mp[j] = orb.Point{p.X, p.Y}
		}
		feat := geojson.NewFeature(mp)
		median := g.CellCenter(f.Median)
		target := g.CellCenter(f.Target)
		feat.Properties["layer"] = "frontier"
		feat.Properties["rank"] = i
		feat.Properties["size"] = f.Size()
		feat.Properties["median"] = []float64{median.X, median.Y}
		feat.Properties["target"] = []float64{target.X, target.Y}
		fc.Append(feat)
	}
	return fc
}

// PathGeoJSON exports a world path as a single LineString feature. An empty
// path yields an empty collection.
func PathGeoJSON(points []Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(points) == 0 {
		return fc
	}
	var geom orb.Geometry = LineString(points)
	if len(points) == 1 {
		geom = orb.Point{points[0].X, points[0].Y}
	}
	feat := geojson.NewFeature(geom)
	feat.Properties["layer"] = "path"
	feat.Properties["waypoints"] = len(points)
	feat.Properties["length"] = PathLength(points)
	fc.Append(feat)
	return fc
}
