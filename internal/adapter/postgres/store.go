package postgres

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// validID reports whether id can be compared against a UUID column. Callers
// treat malformed ids as missing records instead of surfacing a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
