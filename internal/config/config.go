// Package config loads the relay's process configuration from a .env
// file (via godotenv, as ocx-backend's cmd binaries do) layered under
// flags and defaults, generalizing samp-server-go's hardcoded
// loadConfig().
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the relay process's full runtime configuration.
type Config struct {
	Host string
	Port int

	MaxRoomsPerProcess int
	RoomTickInterval   time.Duration

	ManagementGRPCAddr string

	MetricsAddr string
}

// Default returns the relay's built-in defaults, matching
// samp-server-go's loadConfig in spirit if not in domain.
func Default() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                7777,
		MaxRoomsPerProcess:  4096,
		RoomTickInterval:    50 * time.Millisecond,
		ManagementGRPCAddr:  "0.0.0.0:7778",
		MetricsAddr:         "0.0.0.0:9090",
	}
}

// Load reads envPath (if present; missing is not an error, matching
// godotenv.Load's common usage of silently falling back to process
// environment), then applies environment variables and flags on top of
// Default, flags taking precedence.
func Load(envPath string, args []string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: loading %s: %w", envPath, err)
		}
	}

	cfg := Default()
	applyEnv(&cfg)

	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	host := fs.String("host", cfg.Host, "UDP bind host")
	port := fs.Int("port", cfg.Port, "UDP bind port")
	maxRooms := fs.Int("max-rooms", cfg.MaxRoomsPerProcess, "maximum rooms hosted by this process")
	tick := fs.Duration("tick-interval", cfg.RoomTickInterval, "per-room flush interval (not applied: the server ticks every room at its fixed 50ms TickInterval)")
	mgmtAddr := fs.String("management-addr", cfg.ManagementGRPCAddr, "management gRPC listen address")
	metricsAddr := fs.String("metrics-addr", cfg.MetricsAddr, "Prometheus /metrics listen address")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Host = *host
	cfg.Port = *port
	cfg.MaxRoomsPerProcess = *maxRooms
	cfg.RoomTickInterval = *tick
	cfg.ManagementGRPCAddr = *mgmtAddr
	cfg.MetricsAddr = *metricsAddr
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RELAY_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("RELAY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("RELAY_MAX_ROOMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRoomsPerProcess = n
		}
	}
	if v := os.Getenv("RELAY_MANAGEMENT_ADDR"); v != "" {
		cfg.ManagementGRPCAddr = v
	}
	if v := os.Getenv("RELAY_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}
