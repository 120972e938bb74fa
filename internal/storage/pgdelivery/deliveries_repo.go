package pgdelivery

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/chrismessina/delivery-tracker/internal/models"
)

const (
	deliveryColumns = `
  id, name, tracking_number, carrier, notes,
  archived, archived_at, manual_marked_as_delivered, debug,
  created_at, updated_at`
	selectDeliveryColumns = `
  id::text, name, tracking_number, carrier, notes,
  archived, archived_at, manual_marked_as_delivered, debug,
  created_at, updated_at`
)

func (s *Storage) CreateDelivery(ctx context.Context, d models.Delivery) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO deliveries (`+deliveryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, d.ID, d.Name, d.TrackingNumber, d.Carrier, d.Notes,
		d.Archived, d.ArchivedAt, d.ManualMarkedAsDelivered, d.Debug,
		d.CreatedAt, d.UpdatedAt)
	return errors.Wrap(err, "insert delivery")
}

func (s *Storage) GetDelivery(ctx context.Context, id string) (models.Delivery, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectDeliveryColumns+` FROM deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Delivery{}, models.ErrDeliveryNotFound
	}
	if err != nil {
		return models.Delivery{}, errors.Wrap(err, "select delivery")
	}
	return d, nil
}

// ListDeliveries returns deliveries in creation order.
func (s *Storage) ListDeliveries(ctx context.Context) ([]models.Delivery, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectDeliveryColumns+` FROM deliveries ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "select deliveries")
	}
	defer rows.Close()

	out := []models.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan delivery")
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) SaveDelivery(ctx context.Context, d models.Delivery) error {
	tag, err := s.db.Exec(ctx, `
UPDATE deliveries SET
  name = $2, tracking_number = $3, carrier = $4, notes = $5,
  archived = $6, archived_at = $7, manual_marked_as_delivered = $8, debug = $9,
  updated_at = $10
WHERE id = $1
`, d.ID, d.Name, d.TrackingNumber, d.Carrier, d.Notes,
		d.Archived, d.ArchivedAt, d.ManualMarkedAsDelivered, d.Debug, d.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update delivery")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDeliveryNotFound
	}
	return nil
}

func (s *Storage) DeleteDeliveries(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM deliveries WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "delete deliveries")
	}
	return int(tag.RowsAffected()), nil
}

func scanDelivery(row pgx.Row) (models.Delivery, error) {
	var d models.Delivery
	err := row.Scan(
		&d.ID, &d.Name, &d.TrackingNumber, &d.Carrier, &d.Notes,
		&d.Archived, &d.ArchivedAt, &d.ManualMarkedAsDelivered, &d.Debug,
		&d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}
