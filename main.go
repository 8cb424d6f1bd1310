package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/trafficsim/internal/api"
	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/geom"
	"github.com/banshee-data/trafficsim/internal/metrics"
	"github.com/banshee-data/trafficsim/internal/sim"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Optional tuning config (JSON)")
	metricsDB  = flag.String("metrics-db", "trafficsim.db", "Metrics database path")
	metricsLog = flag.String("metrics-log", "", "Optional flat-file metrics log path")
	seed       = flag.Int64("seed", 0, "Simulation random seed (0 = time-based)")
)

// demoNetwork is a ring of four junctions with a curved diagonal shortcut,
// a roundabout on the north-east corner, and one feeder road where
// vehicles enter.
func demoNetwork() (*geom.Network, error) {
	n := geom.NewNetwork()

	roads := []*geom.RoadSegment{
		{ID: "feeder", Start: geom.Position{X: -300}, End: geom.Position{}, Lanes: 2, SpeedLimit: 5, OneWay: true},
		{ID: "ring-n", Start: geom.Position{}, End: geom.Position{X: 600}, Lanes: 2, SpeedLimit: 5},
		{ID: "ring-e", Start: geom.Position{X: 600}, End: geom.Position{X: 600, Y: 600}, Lanes: 2, SpeedLimit: 5},
		{ID: "ring-s", Start: geom.Position{X: 600, Y: 600}, End: geom.Position{Y: 600}, Lanes: 2, SpeedLimit: 4},
		{ID: "ring-w", Start: geom.Position{Y: 600}, End: geom.Position{}, Lanes: 2, SpeedLimit: 4},
		{ID: "diagonal", Start: geom.Position{}, End: geom.Position{X: 600, Y: 600},
			Control: &geom.Position{X: 450, Y: 150}, Lanes: 1, SpeedLimit: 3},
	}
	for _, r := range roads {
		if err := n.AddRoad(r); err != nil {
			return nil, err
		}
	}

	intersections := []*geom.Intersection{
		{ID: "north-west", Position: geom.Position{},
			Incoming: []string{"feeder", "ring-w"}, Outgoing: []string{"ring-n", "diagonal"}},
		{ID: "north-east", Position: geom.Position{X: 600},
			Incoming: []string{"ring-n"}, Outgoing: []string{"ring-e"}},
		{ID: "south-east", Position: geom.Position{X: 600, Y: 600},
			Incoming: []string{"ring-e", "diagonal"}, Outgoing: []string{"ring-s"}},
		{ID: "south-west", Position: geom.Position{Y: 600},
			Incoming: []string{"ring-s"}, Outgoing: []string{"ring-w"}},
	}
	for _, in := range intersections {
		if err := n.AddIntersection(in); err != nil {
			return nil, err
		}
	}

	return n, n.AddRoundabout(&geom.Roundabout{
		ID: "rb-south-east", Center: geom.Position{X: 600, Y: 600}, Radius: 40,
		Incoming: []string{"ring-e", "diagonal"}, Outgoing: []string{"ring-s"},
	})
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := &config.TuningConfig{}
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	network, err := demoNetwork()
	if err != nil {
		log.Fatalf("Failed to build network: %v", err)
	}

	store, err := metrics.NewStore(*metricsDB)
	if err != nil {
		log.Fatalf("Failed to open metrics database: %v", err)
	}
	defer store.Close()

	var recorder sim.Recorder = store
	if *metricsLog != "" {
		lineLog, err := metrics.NewLineLog(*metricsLog)
		if err != nil {
			log.Fatalf("Failed to open metrics log: %v", err)
		}
		defer lineLog.Close()
		recorder = metrics.MultiRecorder{store, lineLog}
	}

	engineSeed := *seed
	if engineSeed == 0 {
		engineSeed = time.Now().UnixNano()
	}
	engine := sim.NewEngine(network, tuning, recorder, engineSeed)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes
		store.AttachAdminRoutes(mux)

		// mount the API handlers
		mux.Handle("/api/", api.NewServer(engine).ServeMux())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// A broken HTTP bridge leaves the simulation itself running.
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server failed: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	engine.Stop()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
