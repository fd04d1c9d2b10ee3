// Package trackstore keeps the static track definition in PostgreSQL.
// Simulation state is never persisted here.
package trackstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/kb"
	"github.com/signalsfoundry/railguard-simulator/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS track_nodes (
	name      TEXT PRIMARY KEY,
	node_type TEXT NOT NULL CHECK (node_type IN ('station', 'signal', 'junction'))
);
CREATE TABLE IF NOT EXISTS track_edges (
	id             SERIAL PRIMARY KEY,
	node_a         TEXT NOT NULL REFERENCES track_nodes(name),
	node_b         TEXT NOT NULL REFERENCES track_nodes(name),
	distance_km    DOUBLE PRECISION NOT NULL CHECK (distance_km >= 0),
	base_time_mins DOUBLE PRECISION CHECK (base_time_mins >= 0),
	UNIQUE (node_a, node_b)
);`

// Options tunes connection handling.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// DefaultOptions returns the pool and retry settings used by Open.
func DefaultOptions() Options {
	return Options{
		MaxRetries:   10,
		RetryBackoff: 2 * time.Second,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		ConnLifetime: 5 * time.Minute,
	}
}

// Store reads and writes the track definition.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open connects to dsn, retrying the ping until it succeeds, ctx is done,
// or the retry budget runs out.
func Open(ctx context.Context, dsn string, log logging.Logger, opts Options) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open track database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnLifetime)

	attempts := opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			log.Info(ctx, "connected to track database")
			return New(db, log), nil
		}
		if i >= attempts || ctx.Err() != nil {
			break
		}
		log.Warn(ctx, "track database not ready",
			logging.Int("attempt", i),
			logging.Int("max_attempts", attempts),
			logging.Err(err),
		)
		select {
		case <-ctx.Done():
		case <-time.After(opts.RetryBackoff):
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("connect to track database: %w", err)
}

// New wraps an existing connection pool.
func New(db *sql.DB, log logging.Logger) *Store {
	if log == nil {
		log = logging.Noop()
	}
	return &Store{db: db, log: log}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the track tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure track schema: %w", err)
	}
	return nil
}

// SeedIfEmpty writes network when no nodes are stored yet. It reports
// whether anything was written.
func (s *Store) SeedIfEmpty(ctx context.Context, network model.TrackNetwork) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("seed track: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM track_nodes`).Scan(&count); err != nil {
		return false, fmt.Errorf("seed track: count nodes: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	for _, n := range network.Nodes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO track_nodes (name, node_type) VALUES ($1, $2)`, n.Name, string(n.Type)); err != nil {
			return false, fmt.Errorf("seed track: node %q: %w", n.Name, err)
		}
	}
	for _, e := range network.Edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO track_edges (node_a, node_b, distance_km, base_time_mins) VALUES ($1, $2, $3, $4)`,
			e.A, e.B, e.DistanceKm, e.BaseTimeMins); err != nil {
			return false, fmt.Errorf("seed track: edge %s-%s: %w", e.A, e.B, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("seed track: commit: %w", err)
	}
	s.log.Info(ctx, "seeded track database",
		logging.Int("nodes", len(network.Nodes)),
		logging.Int("edges", len(network.Edges)),
	)
	return true, nil
}

// Load reads the stored track into base. Edges with no base time get
// core.DefaultBaseTimeMins.
func (s *Store) Load(ctx context.Context, base *kb.KnowledgeBase) (*core.TrackSummary, error) {
	if base == nil {
		return nil, errors.New("trackstore: kb is nil")
	}
	network, err := s.Network(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range network.Nodes {
		if err := base.AddNode(n); err != nil {
			return nil, fmt.Errorf("load track: node %q: %w", n.Name, err)
		}
	}
	for _, e := range network.Edges {
		if err := base.AddEdge(e); err != nil {
			return nil, fmt.Errorf("load track: edge %s-%s: %w", e.A, e.B, err)
		}
	}
	return &core.TrackSummary{Name: "postgres", Nodes: len(network.Nodes), Edges: len(network.Edges)}, nil
}

// Network reads the stored track without loading it anywhere.
func (s *Store) Network(ctx context.Context) (model.TrackNetwork, error) {
	var network model.TrackNetwork

	rows, err := s.db.QueryContext(ctx, `SELECT name, node_type FROM track_nodes ORDER BY name`)
	if err != nil {
		return network, fmt.Errorf("query track nodes: %w", err)
	}
	for rows.Next() {
		var n model.TrackNode
		var typ string
		if err := rows.Scan(&n.Name, &typ); err != nil {
			rows.Close()
			return network, fmt.Errorf("scan track node: %w", err)
		}
		n.Type = model.NodeType(typ)
		network.Nodes = append(network.Nodes, n)
	}
	if err := rows.Close(); err != nil {
		return network, err
	}
	if err := rows.Err(); err != nil {
		return network, fmt.Errorf("read track nodes: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT node_a, node_b, distance_km, base_time_mins FROM track_edges ORDER BY id`)
	if err != nil {
		return network, fmt.Errorf("query track edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e model.TrackEdge
		var baseTime sql.NullFloat64
		if err := rows.Scan(&e.A, &e.B, &e.DistanceKm, &baseTime); err != nil {
			return network, fmt.Errorf("scan track edge: %w", err)
		}
		e.BaseTimeMins = core.DefaultBaseTimeMins
		if baseTime.Valid {
			e.BaseTimeMins = baseTime.Float64
		}
		network.Edges = append(network.Edges, e)
	}
	if err := rows.Err(); err != nil {
		return network, fmt.Errorf("read track edges: %w", err)
	}
	return network, nil
}
