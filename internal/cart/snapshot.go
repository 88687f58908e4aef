package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/kvelder/shopcore/internal/product"
)

// SnapshotLine is one persisted cart line. Only the identity triple is
// durable; product data is re-resolved against the catalog on restore.
type SnapshotLine struct {
	ProductID string `json:"product_id"`
	Variation string `json:"variation,omitempty"`
	Qty       int    `json:"qty"`
}

// Snapshot is the full persisted state of one shopper's cart.
type Snapshot struct {
	Lines []SnapshotLine `json:"lines"`
}

// Repository persists cart snapshots per shopper. Save overwrites the whole
// snapshot; intermediate states are never individually durable.
type Repository interface {
	Save(ctx context.Context, userID string, snap Snapshot) error
	Get(ctx context.Context, userID string) (Snapshot, error)
}

// Snapshot captures the cart's current lines for persistence.
func (c *Cart) Snapshot() Snapshot {
	snap := Snapshot{Lines: make([]SnapshotLine, len(c.lines))}
	for i, l := range c.lines {
		snap.Lines[i] = SnapshotLine{
			ProductID: l.ProductID,
			Variation: l.Variation,
			Qty:       l.Qty,
		}
	}
	return snap
}

// Restore rebuilds a cart from a persisted snapshot, resolving product
// references through the given repository. Lines whose product no longer
// exists are dropped rather than failing the whole restore.
func Restore(ctx context.Context, userID string, snap Snapshot, products product.Repository) (*Cart, error) {
	c := New(userID)
	for _, l := range snap.Lines {
		if l.Qty <= 0 {
			continue
		}
		p, err := products.GetByID(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				continue
			}
			return nil, errors.Wrapf(err, "restore cart line %s", l.ProductID)
		}
		c.lines = append(c.lines, Line{
			ProductID: l.ProductID,
			Variation: l.Variation,
			Qty:       l.Qty,
			Product:   p,
		})
	}
	return c, nil
}
