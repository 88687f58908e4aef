// Package cart implements the per-shopper cart aggregate. Quota checks are
// local and optimistic: they guard against over-reserving relative to the
// shopper's cached view of stock, while the checkout arbiter remains the
// authority at commit time.
package cart

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/kvelder/shopcore/internal/product"
)

// ErrLineNotFound is returned when a mutation targets an unknown line.
var ErrLineNotFound = errors.New("cart line not found")

// QuotaError rejects a mutation that would reserve more units of a product
// than its cached stock allows.
type QuotaError struct {
	ProductID string
	Stock     int
	Reserved  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("product %s: only %d in stock, %d already in cart", e.ProductID, e.Stock, e.Reserved)
}

// VariationQuotaError rejects a mutation that would exceed a variation's own
// stock quota.
type VariationQuotaError struct {
	ProductID string
	Variation string
	Stock     int
	Reserved  int
}

func (e *VariationQuotaError) Error() string {
	return fmt.Sprintf("product %s variation %q: only %d in stock, %d already in cart",
		e.ProductID, e.Variation, e.Stock, e.Reserved)
}

// UnderflowError rejects an UpdateQty that would drop a line to zero or
// below. Removing a line is an explicit RemoveItem, never a side effect.
type UnderflowError struct {
	LineKey string
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("line %s: quantity would drop to zero; remove the line instead", e.LineKey)
}

// Line is a cart entry keyed by product id + variation name. The product
// reference is a weak snapshot of the catalog entry at add time; it may go
// stale after product edits elsewhere.
type Line struct {
	ProductID string
	Variation string
	Qty       int
	Product   *product.Product
}

// Key returns the line's identity within the cart.
func (l *Line) Key() string {
	return LineKey(l.ProductID, l.Variation)
}

// LineKey builds the cart line identity for a product/variation pair.
func LineKey(productID, variation string) string {
	if variation == "" {
		return productID
	}
	return productID + "/" + variation
}

// Cart holds one shopper's pending line items in insertion order.
type Cart struct {
	UserID string
	lines  []Line
}

// New returns an empty cart for the given shopper.
func New(userID string) *Cart {
	return &Cart{UserID: userID}
}

// Lines returns the current line items in insertion order.
func (c *Cart) Lines() []Line {
	return c.lines
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// find returns the index of the line with the given key, or -1.
func (c *Cart) find(key string) int {
	for i := range c.lines {
		if c.lines[i].Key() == key {
			return i
		}
	}
	return -1
}

// reserved sums the quantity held across all lines of the given product,
// regardless of variation.
func (c *Cart) reserved(productID string) int {
	total := 0
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			total += c.lines[i].Qty
		}
	}
	return total
}

// reservedVariation sums the quantity held for one specific variation line.
func (c *Cart) reservedVariation(productID, variation string) int {
	if i := c.find(LineKey(productID, variation)); i >= 0 {
		return c.lines[i].Qty
	}
	return 0
}

// checkQuota verifies that adding delta more units of the product (and
// variation, when named) stays within the cached stock figures.
func (c *Cart) checkQuota(p *product.Product, variation string, delta int) error {
	if got := c.reserved(p.ID); got+delta > p.Stock {
		return &QuotaError{ProductID: p.ID, Stock: p.Stock, Reserved: got}
	}
	if variation != "" {
		v := p.Variation(variation)
		if v == nil {
			return errors.Errorf("product %s has no variation %q", p.ID, variation)
		}
		if got := c.reservedVariation(p.ID, variation); got+delta > v.Stock {
			return &VariationQuotaError{ProductID: p.ID, Variation: variation, Stock: v.Stock, Reserved: got}
		}
	}
	return nil
}

// AddItem upserts a line for the product/variation, incrementing its quantity
// by one. The mutation is rejected with no state change when one more unit
// would exceed the product's stock, or the variation's own stock.
func (c *Cart) AddItem(p *product.Product, variation string) error {
	if err := c.checkQuota(p, variation, 1); err != nil {
		return err
	}
	if i := c.find(LineKey(p.ID, variation)); i >= 0 {
		c.lines[i].Qty++
		c.lines[i].Product = p
		return nil
	}
	c.lines = append(c.lines, Line{
		ProductID: p.ID,
		Variation: variation,
		Qty:       1,
		Product:   p,
	})
	return nil
}

// UpdateQty adjusts an existing line by delta. Positive deltas run the same
// quota checks as AddItem; a delta that would leave the line at zero or below
// is rejected. On any rejection the cart is unchanged.
func (c *Cart) UpdateQty(lineKey string, delta int) error {
	i := c.find(lineKey)
	if i < 0 {
		return ErrLineNotFound
	}
	line := &c.lines[i]
	if delta > 0 {
		if err := c.checkQuota(line.Product, line.Variation, delta); err != nil {
			return err
		}
	} else if line.Qty+delta <= 0 {
		return &UnderflowError{LineKey: lineKey}
	}
	line.Qty += delta
	return nil
}

// RemoveItem deletes a line entirely.
func (c *Cart) RemoveItem(lineKey string) error {
	i := c.find(lineKey)
	if i < 0 {
		return ErrLineNotFound
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return nil
}

// Clear drops every line. Used after a confirmed checkout.
func (c *Cart) Clear() {
	c.lines = nil
}
