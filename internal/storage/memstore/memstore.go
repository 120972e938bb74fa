// Package memstore keeps the package map in process memory.
package memstore

import (
	"context"
	"sync"

	"github.com/chrismessina/delivery-tracker/internal/models"
)

type Packages struct {
	mu sync.Mutex
	m  models.PackageMap
}

func NewPackages(initial models.PackageMap) *Packages {
	return &Packages{m: initial.Clone()}
}

// Update applies fn to the latest map under the lock. fn must not keep a
// reference to its argument.
func (p *Packages) Update(ctx context.Context, fn func(models.PackageMap) models.PackageMap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	next := fn(p.m.Clone())
	if next == nil {
		next = models.PackageMap{}
	}
	p.m = next
	return nil
}

func (p *Packages) Snapshot(ctx context.Context) (models.PackageMap, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m.Clone(), nil
}
