package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bayescal/internal"
	"bayescal/internal/config"
	"bayescal/internal/simserver"
	"bayescal/internal/testkit"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// simserver serves a synthetic simulator over HTTP so the remote
// evaluator path can be exercised end to end.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	name := flag.String("simulator", "building_energy", "Synthetic simulator to serve")
	delay := flag.Duration("delay", 0, "Artificial latency per evaluation")
	flag.Parse()

	sim, err := testkit.ByName(*name)
	if err != nil {
		log.Fatal(err)
	}
	simulate := sim.Func
	if *delay > 0 {
		inner := simulate
		simulate = func(v []float64) (float64, error) {
			time.Sleep(*delay)
			return inner(v)
		}
	}

	srv := simserver.New(sim.Specs, simulate, internal.DefaultLogger)

	mux := http.NewServeMux()
	mux.Handle("/", srv)
	if cfg.Metrics.Addr == "" {
		mux.Handle("/metrics", promhttp.Handler())
	} else {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, metricsMux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Serving %s simulator on :%s", sim.Name, cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Printf("Served %d evaluations", srv.Evaluated())
}
