// Package api exposes the simulation over HTTP: read-only snapshots of
// the world plus a small control surface.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/sim"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const pathPreviewLen = 5

type Server struct {
	engine *sim.Engine
}

func NewServer(engine *sim.Engine) *Server {
	return &Server{engine: engine}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/roads", s.listRoads)
	mux.HandleFunc("/api/vehicles", s.listVehicles)
	mux.HandleFunc("/api/signals", s.listSignals)
	mux.HandleFunc("/api/incidents", s.listIncidents)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/control", s.controlHandler)
	mux.HandleFunc("/api/incident", s.injectIncidentHandler)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type pointAPI struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type roadAPI struct {
	ID         string    `json:"id"`
	Start      pointAPI  `json:"start"`
	End        pointAPI  `json:"end"`
	Control    *pointAPI `json:"control,omitempty"`
	Lanes      int       `json:"lanes"`
	SpeedLimit float64   `json:"speed_limit"`
	OneWay     bool      `json:"one_way"`
	Yield      bool      `json:"yield"`
	Length     float64   `json:"length"`
}

func (s *Server) listRoads(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	roads := s.engine.World().Network().Roads()
	out := make([]roadAPI, 0, len(roads))
	for _, road := range roads {
		entry := roadAPI{
			ID:         road.ID,
			Start:      pointAPI{road.Start.X, road.Start.Y},
			End:        pointAPI{road.End.X, road.End.Y},
			Lanes:      road.Lanes,
			SpeedLimit: road.SpeedLimit,
			OneWay:     road.OneWay,
			Yield:      road.YieldTarget,
			Length:     road.Length(),
		}
		if road.Curved() {
			entry.Control = &pointAPI{road.Control.X, road.Control.Y}
		}
		out = append(out, entry)
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write roads")
	}
}

type vehicleAPI struct {
	ID        string     `json:"id"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Lane      int        `json:"lane"`
	RoadID    string     `json:"road_id"`
	Speed     float64    `json:"speed"`
	Accel     float64    `json:"accel"`
	Intent    string     `json:"intent"`
	Path      []string   `json:"path"`
	Waypoints []pointAPI `json:"waypoints"`
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	net := s.engine.World().Network()
	vehicles := s.engine.World().Vehicles()
	out := make([]vehicleAPI, 0, len(vehicles))
	for _, v := range vehicles {
		preview := v.Path
		if len(preview) > pathPreviewLen {
			preview = preview[:pathPreviewLen]
		}
		waypoints := make([]pointAPI, 0, len(preview))
		for _, roadID := range preview {
			if road := net.Road(roadID); road != nil {
				mid := road.Midpoint()
				waypoints = append(waypoints, pointAPI{mid.X, mid.Y})
			}
		}
		out = append(out, vehicleAPI{
			ID:        v.ID,
			X:         v.Position.X,
			Y:         v.Position.Y,
			Lane:      v.Position.Lane,
			RoadID:    v.RoadID,
			Speed:     v.Speed,
			Accel:     v.Accel,
			Intent:    v.Intent,
			Path:      preview,
			Waypoints: waypoints,
		})
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write vehicles")
	}
}

type signalAPI struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	State string  `json:"state"`
}

func (s *Server) listSignals(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	signals := s.engine.World().Signals()
	out := make([]signalAPI, 0, len(signals))
	for _, sig := range signals {
		out = append(out, signalAPI{
			ID:    sig.ID,
			X:     sig.Position.X,
			Y:     sig.Position.Y,
			State: string(sig.State),
		})
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write signals")
	}
}

type incidentAPI struct {
	ID         string  `json:"id"`
	RoadID     string  `json:"road_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	DurationMS int64   `json:"duration_ms"`
	ExpiresMS  int64   `json:"expires_ms"` // simulated time
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	incidents := s.engine.World().Incidents()
	out := make([]incidentAPI, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, incidentAPI{
			ID:         inc.ID,
			RoadID:     inc.RoadID,
			X:          inc.Position.X,
			Y:          inc.Position.Y,
			DurationMS: inc.Duration.Milliseconds(),
			ExpiresMS:  inc.Expires.Milliseconds(),
		})
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write incidents")
	}
}

type statsAPI struct {
	SimTimeMS       int64              `json:"sim_time_ms"`
	Paused          bool               `json:"paused"`
	SpeedMultiplier float64            `json:"speed_multiplier"`
	ActiveVehicles  int                `json:"active_vehicles"`
	VehiclesSpawned int64              `json:"vehicles_spawned"`
	VehiclesExited  int64              `json:"vehicles_exited"`
	Incidents       int64              `json:"incidents"`
	Congestion      map[string]float64 `json:"congestion"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	world := s.engine.World()
	clock := s.engine.Clock()
	totals := world.Totals()
	stats := statsAPI{
		SimTimeMS:       clock.Now().Milliseconds(),
		Paused:          clock.Paused(),
		SpeedMultiplier: clock.Multiplier(),
		ActiveVehicles:  world.VehicleCount(),
		VehiclesSpawned: totals.VehiclesSpawned,
		VehiclesExited:  totals.VehiclesExited,
		Incidents:       totals.Incidents,
		Congestion:      world.CongestionByRoad(),
	}
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write stats")
	}
}

type controlRequest struct {
	Action     string  `json:"action"` // pause, resume, speed
	Multiplier float64 `json:"multiplier,omitempty"`
}

func (s *Server) controlHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid control request")
		return
	}

	switch req.Action {
	case "pause":
		s.engine.Pause()
	case "resume":
		s.engine.Resume()
	case "speed":
		if err := s.engine.SetSpeed(req.Multiplier); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("Unknown action %q", req.Action))
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"paused":           s.engine.Clock().Paused(),
		"speed_multiplier": s.engine.Clock().Multiplier(),
	})
}

type injectIncidentRequest struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	DurationMS int64   `json:"duration_ms"`
}

func (s *Server) injectIncidentHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req injectIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid incident request")
		return
	}
	if req.DurationMS <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "duration_ms must be positive")
		return
	}

	inc, err := s.engine.InjectIncident(
		geom.Position{X: req.X, Y: req.Y},
		time.Duration(req.DurationMS)*time.Millisecond,
	)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(incidentAPI{
		ID:         inc.ID,
		RoadID:     inc.RoadID,
		X:          inc.Position.X,
		Y:          inc.Position.Y,
		DurationMS: inc.Duration.Milliseconds(),
		ExpiresMS:  inc.Expires.Milliseconds(),
	})
}
