package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Service reports process and database health.
type Service struct {
	DB *sql.DB
}

// NewService constructs a health service. A nil db reports the in-memory store.
func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// Status is the health payload.
type Status struct {
	OK       bool   `json:"ok"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// Check pings the database when one is configured.
func (s *Service) Check(ctx context.Context) Status {
	if s == nil || s.DB == nil {
		return Status{OK: true, Database: "memory"}
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		return Status{OK: false, Database: "postgres", Error: err.Error()}
	}
	return Status{OK: true, Database: "postgres"}
}
