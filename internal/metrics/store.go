// Package metrics persists simulation samples to sqlite and exposes debug
// views over them.
package metrics

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/trafficsim/internal/monitoring"
	"github.com/banshee-data/trafficsim/internal/sim"
)

type Store struct {
	*sql.DB
	path string
}

// NewStore opens (or creates) the metrics database at path. Use ":memory:"
// for an ephemeral store.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS samples (
			sim_time_ms       BIGINT,
			active_vehicles   BIGINT,
			mean_speed        DOUBLE,
			p85_speed         DOUBLE,
			vehicles_spawned  BIGINT,
			vehicles_exited   BIGINT,
			incidents         BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS road_samples (
			sim_time_ms       BIGINT,
			road_id           TEXT,
			vehicle_count     BIGINT,
			congestion        DOUBLE,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_road_samples_road
			ON road_samples (road_id, sim_time_ms);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metrics schema: %w", err)
	}

	return &Store{DB: db, path: path}, nil
}

// Record persists one sample with its per-road rows in a single
// transaction. It satisfies sim.Recorder.
func (s *Store) Record(smp sim.Sample) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO samples
		(sim_time_ms, active_vehicles, mean_speed, p85_speed, vehicles_spawned, vehicles_exited, incidents)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		smp.SimTime.Milliseconds(), smp.ActiveVehicles, smp.MeanSpeed, smp.P85Speed,
		smp.Spawned, smp.Exited, smp.Incidents)
	if err != nil {
		return err
	}

	roadIDs := make([]string, 0, len(smp.RoadCounts))
	for id := range smp.RoadCounts {
		roadIDs = append(roadIDs, id)
	}
	sort.Strings(roadIDs)
	for _, id := range roadIDs {
		_, err = tx.Exec(`INSERT INTO road_samples
			(sim_time_ms, road_id, vehicle_count, congestion)
			VALUES (?, ?, ?, ?)`,
			smp.SimTime.Milliseconds(), id, smp.RoadCounts[id], smp.Congestion[id])
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SampleRow is one persisted fleet-level sample.
type SampleRow struct {
	SimTime        time.Duration
	ActiveVehicles int
	MeanSpeed      float64
	P85Speed       float64
	Spawned        int64
	Exited         int64
	Incidents      int64
}

// RecentSamples returns up to limit samples, newest first.
func (s *Store) RecentSamples(limit int) ([]SampleRow, error) {
	rows, err := s.Query(`SELECT sim_time_ms, active_vehicles, mean_speed, p85_speed,
			vehicles_spawned, vehicles_exited, incidents
		FROM samples ORDER BY sim_time_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SampleRow
	for rows.Next() {
		var r SampleRow
		var ms int64
		if err := rows.Scan(&ms, &r.ActiveVehicles, &r.MeanSpeed, &r.P85Speed,
			&r.Spawned, &r.Exited, &r.Incidents); err != nil {
			return nil, err
		}
		r.SimTime = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// RoadPoint is one persisted per-road sample.
type RoadPoint struct {
	SimTime    time.Duration
	RoadID     string
	Count      int
	Congestion float64
}

// RoadHistory returns up to limit points for one road, oldest first.
func (s *Store) RoadHistory(roadID string, limit int) ([]RoadPoint, error) {
	rows, err := s.Query(`SELECT sim_time_ms, road_id, vehicle_count, congestion
		FROM road_samples WHERE road_id = ?
		ORDER BY sim_time_ms ASC LIMIT ?`, roadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoadPoint
	for rows.Next() {
		var p RoadPoint
		var ms int64
		if err := rows.Scan(&ms, &p.RoadID, &p.Count, &p.Congestion); err != nil {
			return nil, err
		}
		p.SimTime = time.Duration(ms) * time.Millisecond
		out = append(out, p)
	}
	return out, rows.Err()
}

// RoadIDs lists the roads that have at least one persisted point.
func (s *Store) RoadIDs() ([]string, error) {
	rows, err := s.Query(`SELECT DISTINCT road_id FROM road_samples ORDER BY road_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts the debug surface: tailSQL over the metrics
// database and the congestion chart.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "Simulation metrics",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("congestion", "Per-road congestion chart", http.HandlerFunc(s.handleCongestionChart))
	debug.Handle("speeds", "Fleet speed chart", http.HandlerFunc(s.handleSpeedChart))
}
