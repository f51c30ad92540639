// Package erp provides the read-only MSSQL query port against the ERP.
// The bridge never writes to the ERP; every query carries NOLOCK hints and
// runs against a fixed schema owned by the point-of-sale system.
package erp

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"
)

// Store wraps the MSSQL handle with the company scope every query filters on.
type Store struct {
	db    *sql.DB
	EmpID int
}

// Open connects to the ERP database and verifies the connection.
func Open(ctx context.Context, dsn string, empID int) (*Store, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/erp: open: %w", err)
	}
	db.SetMaxOpenConns(3)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("platform/erp: ping: %w", err)
	}
	return &Store{db: db, EmpID: empID}, nil
}

// DB exposes the underlying handle for package-level query helpers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
