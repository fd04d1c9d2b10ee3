// Package config loads server configuration from an optional .env file,
// the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/model"
)

// Config holds railguard-server configuration.
type Config struct {
	// Transport
	HTTPAddr string
	GRPCAddr string

	// Simulation
	Tick        time.Duration
	Accelerated bool
	Roster      []model.Category

	// Track definition; TrackDSN wins over TrackFile, and the built-in
	// network is used when both are empty.
	TrackFile string
	TrackDSN  string

	// Dispatch
	DispatchSequence []string
	DispatchDelay    time.Duration

	// Occupancy seeded at start-up.
	BlockedTracks []model.Segment

	// Routing
	RouteCacheSize int
	RouteCacheTTL  time.Duration

	Log logging.Config
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTPAddr:       ":5000",
		GRPCAddr:       ":50051",
		Tick:           time.Second,
		DispatchDelay:  2 * time.Second,
		RouteCacheSize: 256,
		RouteCacheTTL:  30 * time.Second,
		Log:            logging.Config{Level: "info", Format: "text", AddSource: true},
	}
}

// Load reads RAILGUARD_ENV_FILE (default ".env") if present, applies
// environment variables over the defaults, then parses args as flags.
func Load(args []string) (Config, error) {
	envFile := os.Getenv("RAILGUARD_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Defaults()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.parseFlags(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getEnv("RAILGUARD_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("RAILGUARD_GRPC_ADDR", c.GRPCAddr)
	c.TrackFile = getEnv("RAILGUARD_TRACK_FILE", c.TrackFile)
	c.TrackDSN = getEnv("RAILGUARD_TRACK_DSN", c.TrackDSN)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	var err error
	if c.Tick, err = durationEnv("RAILGUARD_TICK", c.Tick); err != nil {
		return err
	}
	if c.DispatchDelay, err = durationEnv("RAILGUARD_DISPATCH_DELAY", c.DispatchDelay); err != nil {
		return err
	}
	if c.RouteCacheTTL, err = durationEnv("RAILGUARD_ROUTE_CACHE_TTL", c.RouteCacheTTL); err != nil {
		return err
	}
	if raw := os.Getenv("RAILGUARD_ROUTE_CACHE_SIZE"); raw != "" {
		if c.RouteCacheSize, err = strconv.Atoi(raw); err != nil {
			return fmt.Errorf("RAILGUARD_ROUTE_CACHE_SIZE: %w", err)
		}
	}
	if raw := os.Getenv("RAILGUARD_ACCELERATED"); raw != "" {
		if c.Accelerated, err = strconv.ParseBool(raw); err != nil {
			return fmt.Errorf("RAILGUARD_ACCELERATED: %w", err)
		}
	}
	if raw := os.Getenv("RAILGUARD_ROSTER"); raw != "" {
		if c.Roster, err = ParseRoster(raw); err != nil {
			return fmt.Errorf("RAILGUARD_ROSTER: %w", err)
		}
	}
	if raw := os.Getenv("RAILGUARD_DISPATCH_SEQUENCE"); raw != "" {
		c.DispatchSequence = ParseList(raw)
	}
	if raw := os.Getenv("RAILGUARD_BLOCKED_TRACKS"); raw != "" {
		if c.BlockedTracks, err = ParseSegments(raw); err != nil {
			return fmt.Errorf("RAILGUARD_BLOCKED_TRACKS: %w", err)
		}
	}
	return nil
}

func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet("railguard-server", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	flags.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP listen address")
	flags.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "gRPC listen address")
	flags.DurationVar(&c.Tick, "tick", c.Tick, "simulation tick interval")
	flags.BoolVar(&c.Accelerated, "accelerated", c.Accelerated, "tick as fast as possible instead of in real time")
	flags.StringVar(&c.TrackFile, "track-file", c.TrackFile, "JSON track definition")
	flags.StringVar(&c.TrackDSN, "track-dsn", c.TrackDSN, "PostgreSQL DSN holding the track definition")
	flags.DurationVar(&c.DispatchDelay, "dispatch-delay", c.DispatchDelay, "delay between dispatches")
	flags.IntVar(&c.RouteCacheSize, "route-cache-size", c.RouteCacheSize, "route cache entries (0 disables)")
	flags.DurationVar(&c.RouteCacheTTL, "route-cache-ttl", c.RouteCacheTTL, "route cache entry lifetime")
	flags.StringVar(&c.Log.Level, "log-level", c.Log.Level, "debug, info, warn or error")
	flags.StringVar(&c.Log.Format, "log-format", c.Log.Format, "text or json")

	roster := strings.Join(categoryStrings(c.Roster), ",")
	sequence := strings.Join(c.DispatchSequence, ",")
	blocked := FormatSegments(c.BlockedTracks)
	flags.StringVar(&roster, "roster", roster, "comma-separated categories created held at km 0")
	flags.StringVar(&sequence, "dispatch-sequence", sequence, "comma-separated train ids released in order")
	flags.StringVar(&blocked, "blocked-tracks", blocked, "occupied segments, e.g. \"A:B;C:D\"")

	if err := flags.Parse(args); err != nil {
		return err
	}

	var err error
	if c.Roster, err = ParseRoster(roster); err != nil {
		return fmt.Errorf("-roster: %w", err)
	}
	c.DispatchSequence = ParseList(sequence)
	if c.BlockedTracks, err = ParseSegments(blocked); err != nil {
		return fmt.Errorf("-blocked-tracks: %w", err)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	if c.RouteCacheSize < 0 {
		return fmt.Errorf("route cache size must not be negative, got %d", c.RouteCacheSize)
	}
	return nil
}

// ParseList splits a comma-separated list, dropping blanks.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseRoster parses a comma-separated list of train categories.
func ParseRoster(raw string) ([]model.Category, error) {
	var out []model.Category
	for _, item := range ParseList(raw) {
		c, err := model.ParseCategory(item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseSegments parses "A:B;C:D" into segments. Node names may contain
// spaces but not ':' or ';'.
func ParseSegments(raw string) ([]model.Segment, error) {
	var out []model.Segment
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		a, b, ok := strings.Cut(item, ":")
		a, b = strings.TrimSpace(a), strings.TrimSpace(b)
		if !ok || a == "" || b == "" {
			return nil, fmt.Errorf("malformed segment %q, want A:B", item)
		}
		out = append(out, model.Segment{A: a, B: b})
	}
	return out, nil
}

// FormatSegments is the inverse of ParseSegments.
func FormatSegments(segs []model.Segment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.A + ":" + s.B
	}
	return strings.Join(parts, ";")
}

func categoryStrings(cs []model.Category) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
