// Package store opens the Entity Store selected by STORE_DRIVER and hands out
// one repository per aggregate.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medstock/medstock/internal/config"
	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/domain/order"
	"github.com/medstock/medstock/internal/domain/stock"
	"github.com/medstock/medstock/internal/platform/db"
	"github.com/medstock/medstock/internal/platform/store/memory"
	"github.com/medstock/medstock/internal/platform/store/sqlite"
)

// Store is an open Entity Store. Pool is set only for the postgres driver.
type Store struct {
	Driver      string
	Medications medication.Repository
	Lots        stock.Repository
	Orders      order.Repository
	Pool        *pgxpool.Pool

	ping  func(ctx context.Context) error
	close func() error
}

// ReadScope runs fn so that every repository read inside it sees one
// consistent state. On postgres that is a read-only repeatable-read
// transaction; the sqlite and memory backends serialize access already and
// call fn directly.
func (s *Store) ReadScope(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Pool != nil {
		return db.ReadSnapshot(ctx, s.Pool, fn)
	}
	return fn(ctx)
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Store, error) {
	log := logger.With().Str("component", "store").Str("driver", cfg.StoreDriver).Logger()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		log.Info().Int32("max_conns", cfg.DBMaxConns).Msg("connected to database")
		return &Store{
			Driver:      cfg.StoreDriver,
			Medications: medication.NewRepoPG(pool),
			Lots:        stock.NewRepoPG(pool),
			Orders:      order.NewRepoPG(pool),
			Pool:        pool,
			ping:        pool.Ping,
			close:       func() error { pool.Close(); return nil },
		}, nil

	case config.DriverSQLite:
		sdb, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite database")
		return &Store{
			Driver:      cfg.StoreDriver,
			Medications: sdb.Medications(),
			Lots:        sdb.Lots(),
			Orders:      sdb.Orders(),
			ping:        sdb.Ping,
			close:       sdb.Close,
		}, nil

	case config.DriverMemory:
		mdb := memory.New()
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return &Store{
			Driver:      cfg.StoreDriver,
			Medications: mdb.Medications(),
			Lots:        mdb.Lots(),
			Orders:      mdb.Orders(),
			ping:        func(context.Context) error { return nil },
			close:       func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func (s *Store) Ping(ctx context.Context) error { return s.ping(ctx) }

func (s *Store) Close() error { return s.close() }
