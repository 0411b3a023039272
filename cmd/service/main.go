package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"

	"github.com/kasuganosora/syncbase/internal/access"
	"github.com/kasuganosora/syncbase/internal/binary"
	"github.com/kasuganosora/syncbase/internal/config"
	"github.com/kasuganosora/syncbase/internal/pool"
	"github.com/kasuganosora/syncbase/internal/query"
	"github.com/kasuganosora/syncbase/internal/schema"
	"github.com/kasuganosora/syncbase/internal/sync"
	"github.com/kasuganosora/syncbase/internal/track"
	"github.com/kasuganosora/syncbase/server/httpapi"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	cfg := config.LoadOrDefault()

	registry := pool.NewRegistry()
	db, err := registry.Open("primary", cfg.Backend.Driver, cfg.Backend.DSN, cfg.Pool.ToPoolConfig())
	if err != nil {
		log.Fatalf("failed to open backend: %v", err)
	}

	reflector, err := newReflector(cfg.Backend.Driver, db)
	if err != nil {
		log.Fatalf("failed to select schema reflector: %v", err)
	}

	catalog := schema.New(reflector)
	if _, err := catalog.Load(); err != nil {
		log.Fatalf("failed to load schema catalog: %v", err)
	}

	dialect, err := query.DialectForDriver(cfg.Backend.Driver)
	if err != nil {
		log.Fatalf("failed to select dialect: %v", err)
	}
	client := access.New(db, dialect, catalog)

	tracker := track.New(cfg.Track.ToTrackConfig(cfg.Sync.Masked))
	tracker.Install(client)

	syncSrv := sync.NewServer(client, cfg.Sync.ToSyncConfig())
	binEngine := binary.NewEngine(client, cfg.Binary.ToBinaryConfig())
	sessions := httpapi.NewInMemorySessionStore(nil)

	server := httpapi.NewServer(client, syncSrv, binEngine, sessions, cfg.Server)

	log.Printf("starting server on %s", cfg.Server.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	case <-ctx.Done():
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}

// newReflector picks the schema.Reflector matching the configured backend
// driver — mirrors the original driver-name dispatch for its connection
// pool, generalized across the three drivers this repo wires.
func newReflector(driver string, db *sql.DB) (schema.Reflector, error) {
	switch driver {
	case "mysql":
		return &schema.MySQLReflector{DB: db}, nil
	case "postgres":
		return &schema.PostgresReflector{DB: db}, nil
	case "sqlite":
		return &schema.SQLiteReflector{DB: db}, nil
	default:
		return nil, &unsupportedDriverError{driver: driver}
	}
}

type unsupportedDriverError struct{ driver string }

func (e *unsupportedDriverError) Error() string {
	return "unsupported backend driver: " + e.driver
}
