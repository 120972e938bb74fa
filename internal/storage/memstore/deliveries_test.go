package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chrismessina/delivery-tracker/internal/models"
)

func TestDeliveries_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewDeliveries()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateDelivery(ctx, models.Delivery{ID: "b", Name: "B", CreatedAt: t0.Add(time.Minute)}))
	require.NoError(t, s.CreateDelivery(ctx, models.Delivery{ID: "a", Name: "A", CreatedAt: t0}))

	list, err := s.ListDeliveries(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "b", list[1].ID)

	d, err := s.GetDelivery(ctx, "a")
	require.NoError(t, err)
	d.Name = "A2"
	require.NoError(t, s.SaveDelivery(ctx, d))

	got, err := s.GetDelivery(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "A2", got.Name)

	require.ErrorIs(t, s.SaveDelivery(ctx, models.Delivery{ID: "zzz"}), models.ErrDeliveryNotFound)

	n, err := s.DeleteDeliveries(ctx, "a", "missing")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.GetDelivery(ctx, "a")
	require.ErrorIs(t, err, models.ErrDeliveryNotFound)
}
