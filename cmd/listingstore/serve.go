package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dshills/listingstore/internal/mcp"
)

type cmdServe struct {
	MetricsAddr string `long:"metrics-addr" description:"Serve Prometheus metrics at /debug/metrics on this address"`
}

func (cmd *cmdServe) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cfg, store, err := openStore(ctx, reg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	addr := cfg.Metrics.Addr
	if cmd.MetricsAddr != "" {
		addr = cmd.MetricsAddr
	}
	if addr != "" {
		stop := serveMetrics(addr, reg)
		defer stop()
	}

	server := mcp.NewServer(store, mcp.Options{
		ReadLimit: cfg.Database.ReadLimit,
		Workers:   cfg.Ingest.Workers,
	})

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		log.Info("received signal, shutting down")
		return nil
	case err := <-errChan:
		if err != nil {
			return err
		}
	}
	log.Info("server stopped")
	return nil
}

// serveMetrics serves reg over HTTP until the returned func is called
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/debug/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(log.Fields{"addr": addr, "err": err}).Error("metrics server failed")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
