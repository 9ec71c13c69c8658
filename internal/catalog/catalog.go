// Package catalog stores the session's acquisition outcomes, most recent
// first. Deals are immutable once created except for their negotiation
// status, which an external workflow advances.
package catalog

import (
	"strconv"
	"sync"
	"time"

	"sentientgrid/internal/types"
)

// Catalog is the in-memory deal ledger.
type Catalog struct {
	mu    sync.Mutex
	seq   int64
	deals []types.Deal
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{}
}

// SeedDeals returns the default catalog contents.
func SeedDeals() []types.Deal {
	return []types.Deal{
		{Title: "MATRIX RUNNER", AssetLabel: "BIO-SYNTH CORE", Price: 0.35, Status: types.DealSigned, PreviewRef: "https://images.unsplash.com/photo-1550745165-9bc0b252726f?q=80&w=200&h=200&fit=crop"},
		{Title: "TEAL SECTOR", AssetLabel: "CYBER MESH V9", Price: 0.18, Status: types.DealPending, PreviewRef: "https://images.unsplash.com/photo-1558591710-4b4a1ae0f04d?q=80&w=200&h=200&fit=crop"},
		{Title: "NEON DRIFT", AssetLabel: "CORE V3", Price: 0.45, Status: types.DealNegotiating, PreviewRef: "https://images.unsplash.com/photo-1550751827-4bd374c3f58b?q=80&w=200&h=200&fit=crop"},
	}
}

// Seed appends deals in the given order (oldest first).
func (c *Catalog) Seed(deals []types.Deal) {
	for _, d := range deals {
		c.append(d)
	}
}

func (c *Catalog) append(d types.Deal) types.Deal {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	d.ID = strconv.FormatInt(c.seq, 10)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	c.deals = append(c.deals, d)
	return d
}

// Prepend records a new deal as the most recent entry, assigning it the
// next monotonic id, and returns the stored deal.
func (c *Catalog) Prepend(d types.Deal) types.Deal {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	d.ID = strconv.FormatInt(c.seq, 10)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	c.deals = append([]types.Deal{d}, c.deals...)
	return d
}

// Snapshot returns the deals, most recent first.
func (c *Catalog) Snapshot() []types.Deal {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Deal, len(c.deals))
	copy(out, c.deals)
	return out
}

// Len returns the number of catalogued deals.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deals)
}
