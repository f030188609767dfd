package main

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/kwv/tudoscout/scout"
	"github.com/paulmach/orb/geojson"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(explorer *scout.Explorer, stateTracker *scout.StateTracker) http.Handler {
	mux := http.NewServeMux()
	raster := scout.NewMapRenderer()
	vector := scout.NewVectorRenderer()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status      string             `json:"status"`
			Version     string             `json:"version"`
			Timestamp   time.Time          `json:"timestamp"`
			Exploration scout.StateSummary `json:"exploration"`
		}{
			Status:      "ok",
			Version:     Version,
			Timestamp:   time.Now(),
			Exploration: stateTracker.Summary(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Rendered map with frontiers, path and robot
	mux.HandleFunc("GET /map.png", func(w http.ResponseWriter, r *http.Request) {
		snap, overlay := stateTracker.Snapshot()
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := raster.RenderPNG(w, snap, overlay); err != nil {
			log.Printf("Error encoding map PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /map.svg", func(w http.ResponseWriter, r *http.Request) {
		snap, overlay := stateTracker.Snapshot()
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := vector.RenderToSVG(w, snap, overlay); err != nil {
			log.Printf("Error encoding map SVG: %v", err)
		}
	})

	// Raw occupancy, one grey pixel per cell
	mux.HandleFunc("GET /occupancy.png", func(w http.ResponseWriter, r *http.Request) {
		snap, _ := stateTracker.Snapshot()
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, scout.OccupancyImage(snap)); err != nil {
			log.Printf("Error encoding occupancy PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /frontiers.geojson", func(w http.ResponseWriter, r *http.Request) {
		writeGeoJSON(w, scout.FrontiersGeoJSON(explorer.Frontiers(), explorer.Grid()))
	})

	mux.HandleFunc("GET /path.geojson", func(w http.ResponseWriter, r *http.Request) {
		writeGeoJSON(w, scout.PathGeoJSON(explorer.Path().ToWorld(explorer.Grid())))
	})

	// Wall centerlines traced through cells the planner treats as obstacles
	mux.HandleFunc("GET /walls.geojson", func(w http.ResponseWriter, r *http.Request) {
		snap, _ := stateTracker.Snapshot()
		threshold := explorer.Config().Planner.ObstacleCertainty
		writeGeoJSON(w, scout.WallsGeoJSON(scout.TraceWalls(snap, threshold, snap.CellSize/2)))
	})

	// Drop the active path; the next cycle plans again from fresh frontiers
	mux.HandleFunc("POST /replan", func(w http.ResponseWriter, r *http.Request) {
		explorer.RequestReplan()
		w.WriteHeader(http.StatusAccepted)
	})

	// Default route serves HTML page embedding the SVG map
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>tudoscout</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/map.svg" alt="Exploration Map">
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

func writeGeoJSON(w http.ResponseWriter, fc *geojson.FeatureCollection) {
	data, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, "encoding GeoJSON: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}
