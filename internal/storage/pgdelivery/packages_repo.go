package pgdelivery

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/chrismessina/delivery-tracker/internal/models"
)

// PackageStore exposes the package map half of Storage.
type PackageStore struct {
	s *Storage
}

func (s *Storage) Packages() *PackageStore {
	return &PackageStore{s: s}
}

func (p *PackageStore) Snapshot(ctx context.Context) (models.PackageMap, error) {
	return loadPackages(ctx, p.s.db)
}

// Update runs fn inside a transaction holding an exclusive lock on the
// packages table, then writes only the rows that changed.
func (p *PackageStore) Update(ctx context.Context, fn func(models.PackageMap) models.PackageMap) error {
	tx, err := p.s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `LOCK TABLE delivery_packages IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return errors.Wrap(err, "lock packages")
	}

	cur, err := loadPackages(ctx, tx)
	if err != nil {
		return err
	}
	next := fn(cur.Clone())

	for id, v := range next {
		if old, ok := cur[id]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		b, err := json.Marshal(v.Packages)
		if err != nil {
			return errors.Wrap(err, "marshal packages")
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO delivery_packages (delivery_id, packages, last_updated)
VALUES ($1, $2, $3)
ON CONFLICT (delivery_id)
DO UPDATE SET packages = EXCLUDED.packages, last_updated = EXCLUDED.last_updated
`, id, b, v.LastUpdated); err != nil {
			return errors.Wrap(err, "upsert packages")
		}
	}

	var gone []string
	for id := range cur {
		if _, ok := next[id]; !ok {
			gone = append(gone, id)
		}
	}
	if len(gone) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM delivery_packages WHERE delivery_id = ANY($1::uuid[])`, gone); err != nil {
			return errors.Wrap(err, "delete packages")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadPackages(ctx context.Context, q querier) (models.PackageMap, error) {
	rows, err := q.Query(ctx, `SELECT delivery_id::text, packages, last_updated FROM delivery_packages`)
	if err != nil {
		return nil, errors.Wrap(err, "select packages")
	}
	defer rows.Close()

	out := models.PackageMap{}
	for rows.Next() {
		var (
			id  string
			raw []byte
			tp  models.TrackedPackages
		)
		if err := rows.Scan(&id, &raw, &tp.LastUpdated); err != nil {
			return nil, errors.Wrap(err, "scan packages")
		}
		if err := json.Unmarshal(raw, &tp.Packages); err != nil {
			return nil, errors.Wrapf(err, "decode packages of %s", id)
		}
		tp.LastUpdated = tp.LastUpdated.UTC()
		out[id] = tp
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
