package main

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avkviring/cheetah-relay/internal/config"
	"github.com/avkviring/cheetah-relay/internal/management"
	"github.com/avkviring/cheetah-relay/internal/metrics"
	"github.com/avkviring/cheetah-relay/internal/server"
	"github.com/avkviring/cheetah-relay/pkg/logger"
)

const (
	Version = "1.0.0"
	Author  = "cheetah-relay"
)

func main() {
	logger.Banner("Cheetah Relay", Version)

	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		logger.Fatal("Config error: %v", err)
	}

	logger.Info("Relay version: %s", Version)
	logger.Info("UDP bind: %s:%d", cfg.Host, cfg.Port)
	logger.Info("Max rooms per process: %d", cfg.MaxRoomsPerProcess)
	logger.Info("Management gRPC: %s", cfg.ManagementGRPCAddr)
	logger.Info("Metrics: %s", cfg.MetricsAddr)
	logger.Success("Configuration loaded successfully")

	srv, err := server.Listen(&net.UDPAddr{IP: net.ParseIP(cfg.Host), Port: cfg.Port})
	if err != nil {
		logger.Fatal("Failed to bind UDP socket: %v", err)
	}
	srv.Metrics = metrics.New()

	mgr := management.New(srv)
	mgmtServer := management.NewServer(mgr, cfg.MaxRoomsPerProcess)

	stopHeartbeat := make(chan struct{})
	go mgmtServer.RunHeartbeat(func(state management.ReadinessState) {
		logger.Debug("heartbeat: readiness=%d", state)
	}, stopHeartbeat)

	go func() {
		if err := mgmtServer.ListenAndServe(cfg.ManagementGRPCAddr); err != nil {
			logger.Error("management gRPC server stopped: %v", err)
		}
	}()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.Error("metrics server stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	logger.Success("Relay listening on %s", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))

	select {
	case err := <-errChan:
		logger.Fatal("Server error: %v", err)
	case sig := <-sigChan:
		logger.Warn("Received signal: %v", sig)
		logger.Info("Shutting down gracefully...")

		close(stopHeartbeat)
		mgmtServer.Stop()
		srv.Stop()

		time.Sleep(200 * time.Millisecond)
		logger.Success("Relay stopped")
		os.Exit(0)
	}
}
