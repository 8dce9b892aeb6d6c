package database

import (
	"database/sql"
	"time"
)

// PoolSettings sizes the database/sql connection pool of a client.
type PoolSettings struct {
	MaxOpen     int
	MaxIdle     int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// DefaultPoolSettings leaves room for the concurrent file loaders plus the
// stage running beside them.
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxOpen:     DefaultWorkers * 2,
		MaxIdle:     DefaultWorkers,
		MaxIdleTime: 5 * time.Minute,
		MaxLifetime: 30 * time.Minute,
	}
}

// Apply configures db. Zero values keep the database/sql defaults.
func (s PoolSettings) Apply(db *sql.DB) {
	if s.MaxOpen > 0 {
		db.SetMaxOpenConns(s.MaxOpen)
	}
	if s.MaxIdle > 0 {
		db.SetMaxIdleConns(s.MaxIdle)
	}
	if s.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(s.MaxIdleTime)
	}
	if s.MaxLifetime > 0 {
		db.SetConnMaxLifetime(s.MaxLifetime)
	}
}
