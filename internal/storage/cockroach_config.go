package storage

import "time"

// CockroachConfig tunes the database/sql (lib/pq) connection pool used against
// CockroachDB's Postgres wire protocol. Every bot in a deployment shares
// one pool, so these limits bound total connections to the cluster, not
// per-bot connections.
type CockroachConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultCockroachConfig returns the pool settings used when a deployment
// doesn't override them: modest enough for a single-node CockroachDB
// instance backing a handful of bots.
func DefaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}
