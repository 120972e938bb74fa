package carrier

import (
	"context"
	"sort"

	"github.com/chrismessina/delivery-tracker/internal/models"
)

// Carrier описывает, что умеет перевозчик: обновить треки, сказать, трекается ли он
// удалённо, и отдать ссылку на страницу отслеживания.
type Carrier interface {
	UpdateTracking(ctx context.Context, d models.Delivery) ([]models.Package, error)
	AbleToTrackRemotely() bool
	URLToTrackingWebpage(d models.Delivery) string
}

// Registry is a read-only carrier lookup built once at startup.
type Registry struct {
	carriers map[string]Carrier
}

func NewRegistry(carriers map[string]Carrier) *Registry {
	m := make(map[string]Carrier, len(carriers))
	for k, c := range carriers {
		if c != nil {
			m[k] = c
		}
	}
	return &Registry{carriers: m}
}

func (r *Registry) Get(key string) (Carrier, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.carriers[key]
	return c, ok
}

// Keys returns registered carrier keys, sorted.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.carriers))
	for k := range r.carriers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CanTrackRemotely reports whether the delivery's carrier is registered and
// fetches tracking itself. Unknown carriers report false.
func (r *Registry) CanTrackRemotely(key string) bool {
	c, ok := r.Get(key)
	return ok && c.AbleToTrackRemotely()
}
