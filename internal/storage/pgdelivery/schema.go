package pgdelivery

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS deliveries (
  id UUID PRIMARY KEY,
  name TEXT NOT NULL,
  tracking_number TEXT NOT NULL,
  carrier TEXT NOT NULL,
  notes TEXT NOT NULL DEFAULT '',
  archived BOOLEAN NOT NULL DEFAULT FALSE,
  archived_at TIMESTAMPTZ NULL,
  manual_marked_as_delivered BOOLEAN NOT NULL DEFAULT FALSE,
  debug BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at, id)`,
		// Кэш ответов перевозчиков; строка на доставку, пакеты целиком в JSONB.
		`
CREATE TABLE IF NOT EXISTS delivery_packages (
  delivery_id UUID PRIMARY KEY,
  packages JSONB NOT NULL,
  last_updated TIMESTAMPTZ NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
