package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/sim"
)

func testNetwork(t *testing.T) *geom.Network {
	t.Helper()
	n := geom.NewNetwork()
	require.NoError(t, n.AddRoad(&geom.RoadSegment{
		ID: "R1", Start: geom.Position{}, End: geom.Position{X: 300},
		Lanes: 2, SpeedLimit: 5,
	}))
	require.NoError(t, n.AddRoad(&geom.RoadSegment{
		ID: "R2", Start: geom.Position{X: 300}, End: geom.Position{X: 300, Y: 300},
		Lanes: 1, SpeedLimit: 4,
		Control: &geom.Position{X: 400, Y: 150},
	}))
	require.NoError(t, n.AddIntersection(&geom.Intersection{
		ID: "I1", Position: geom.Position{X: 300},
		Incoming: []string{"R1"}, Outgoing: []string{"R2"},
	}))
	return n
}

func newTestServer(t *testing.T) (*Server, *sim.Engine) {
	t.Helper()
	e := sim.NewEngine(testNetwork(t), &config.TuningConfig{}, nil, 1)
	return NewServer(e), e
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec, rec.Body.Bytes()
}

func TestListRoads(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec, body := doJSON(t, s.ServeMux(), http.MethodGet, "/api/roads", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var roads []roadAPI
	require.NoError(t, json.Unmarshal(body, &roads))
	require.Len(t, roads, 2)
	assert.Equal(t, "R1", roads[0].ID)
	assert.Equal(t, 2, roads[0].Lanes)
	assert.Nil(t, roads[0].Control)
	assert.InDelta(t, 300, roads[0].Length, 0.001)
	require.NotNil(t, roads[1].Control)
	assert.Greater(t, roads[1].Length, 300.0) // curve is longer than the chord
}

func TestListSignals(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec, body := doJSON(t, s.ServeMux(), http.MethodGet, "/api/signals", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var signals []signalAPI
	require.NoError(t, json.Unmarshal(body, &signals))
	require.Len(t, signals, 1)
	assert.Equal(t, "signal-I1", signals[0].ID)
	assert.Equal(t, "RED", signals[0].State)
}

func TestListVehicles(t *testing.T) {
	t.Parallel()

	s, e := newTestServer(t)
	require.NoError(t, e.Start(t.Context()))
	defer e.Stop()
	e.Pause() // keep the spawner from adding vehicles mid-test

	_, err := e.StartVehicle(sim.VehicleSeed{
		ID: "car-1", RoadID: "R1", Profile: sim.ProfileNormal, DestinationID: "I1",
	})
	require.NoError(t, err)

	rec, body := doJSON(t, s.ServeMux(), http.MethodGet, "/api/vehicles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var vehicles []vehicleAPI
	require.NoError(t, json.Unmarshal(body, &vehicles))
	require.Len(t, vehicles, 1)
	assert.Equal(t, "car-1", vehicles[0].ID)
	assert.Equal(t, "R1", vehicles[0].RoadID)
	assert.Len(t, vehicles[0].Waypoints, len(vehicles[0].Path))
}

func TestStatsAndControl(t *testing.T) {
	t.Parallel()

	s, e := newTestServer(t)
	mux := s.ServeMux()

	rec, body := doJSON(t, mux, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats statsAPI
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.False(t, stats.Paused)
	assert.Equal(t, 1.0, stats.SpeedMultiplier)

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/control", `{"action":"pause"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, e.Clock().Paused())

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/control", `{"action":"resume"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, e.Clock().Paused())

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/control", `{"action":"speed","multiplier":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, e.Clock().Multiplier())

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/control", `{"action":"speed","multiplier":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/control", `{"action":"warp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/control", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestInjectIncident(t *testing.T) {
	t.Parallel()

	s, e := newTestServer(t)
	mux := s.ServeMux()

	rec, body := doJSON(t, mux, http.MethodPost, "/api/incident", `{"x":150,"y":2,"duration_ms":20000}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var inc incidentAPI
	require.NoError(t, json.Unmarshal(body, &inc))
	assert.Equal(t, "R1", inc.RoadID)
	assert.Equal(t, int64(20000), inc.DurationMS)
	require.Len(t, e.World().Incidents(), 1)

	rec, body = doJSON(t, mux, http.MethodGet, "/api/incidents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var incidents []incidentAPI
	require.NoError(t, json.Unmarshal(body, &incidents))
	require.Len(t, incidents, 1)
	assert.Equal(t, inc.ID, incidents[0].ID)

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/incident", `{"x":1,"y":2,"duration_ms":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, mux, http.MethodPost, "/api/incident", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
