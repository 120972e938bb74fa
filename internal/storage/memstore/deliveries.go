package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/chrismessina/delivery-tracker/internal/models"
)

// Deliveries is an in-memory delivery repository.
type Deliveries struct {
	mu sync.RWMutex
	m  map[string]models.Delivery
}

func NewDeliveries() *Deliveries {
	return &Deliveries{m: map[string]models.Delivery{}}
}

func (s *Deliveries) CreateDelivery(ctx context.Context, d models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[d.ID] = d
	return nil
}

func (s *Deliveries) GetDelivery(ctx context.Context, id string) (models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.m[id]
	if !ok {
		return models.Delivery{}, models.ErrDeliveryNotFound
	}
	return d, nil
}

// ListDeliveries returns deliveries in creation order.
func (s *Deliveries) ListDeliveries(ctx context.Context) ([]models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Delivery, 0, len(s.m))
	for _, d := range s.m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Deliveries) SaveDelivery(ctx context.Context, d models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[d.ID]; !ok {
		return models.ErrDeliveryNotFound
	}
	s.m[d.ID] = d
	return nil
}

func (s *Deliveries) DeleteDeliveries(ctx context.Context, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.m[id]; ok {
			delete(s.m, id)
			n++
		}
	}
	return n, nil
}
