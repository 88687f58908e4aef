package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Status describes whether a product can currently be ordered.
type Status string

const (
	StatusAvailable Status = "available"
	StatusSoldOut   Status = "sold_out"
)

// Variation is a named sub-SKU with its own stock quota. Its stock is
// informally a subset of the parent product's total stock; the containment is
// not enforced (see CheckContainment).
type Variation struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

// Product is a catalog item. Stock is the authoritative total across all
// variations.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	CarryingFee decimal.Decimal `json:"carryingFee"`
	ShippingFee decimal.Decimal `json:"shippingFee"`
	Stock       int             `json:"stock"`
	Status      Status          `json:"status"`
	Variations  []Variation     `json:"variations,omitempty"`
}

// Variation returns a pointer into p.Variations for the given name, or nil.
func (p *Product) Variation(name string) *Variation {
	for i := range p.Variations {
		if p.Variations[i].Name == name {
			return &p.Variations[i]
		}
	}
	return nil
}

// Restock credits qty back to the product total and, when a variation name is
// given and known, to that variation. A sold-out product with stock again
// above zero flips back to available.
func (p *Product) Restock(qty int, variation string) {
	p.Stock += qty
	if variation != "" {
		if v := p.Variation(variation); v != nil {
			v.Stock += qty
		}
	}
	if p.Status == StatusSoldOut && p.Stock > 0 {
		p.Status = StatusAvailable
	}
}

// Debit subtracts qty from the product total and, when given, the variation.
// Stock reaching zero flips the product to sold_out. The caller is expected
// to have verified sufficiency first.
func (p *Product) Debit(qty int, variation string) {
	p.Stock -= qty
	if variation != "" {
		if v := p.Variation(variation); v != nil {
			v.Stock -= qty
		}
	}
	if p.Stock <= 0 {
		p.Status = StatusSoldOut
	}
}

// Clone returns a deep copy, including the variations slice.
func (p *Product) Clone() *Product {
	cp := *p
	if len(p.Variations) > 0 {
		cp.Variations = make([]Variation, len(p.Variations))
		copy(cp.Variations, p.Variations)
	}
	return &cp
}

// ContainmentError reports a variation whose stock exceeds the product total.
type ContainmentError struct {
	ProductID string
	Variation string
	VarStock  int
	Total     int
}

func (e *ContainmentError) Error() string {
	return fmt.Sprintf("product %s: variation %q stock %d exceeds total %d",
		e.ProductID, e.Variation, e.VarStock, e.Total)
}

// CheckContainment reports the first variation whose stock exceeds the
// product's total stock. Staff edits can make the two drift apart; callers
// log the violation rather than rejecting the edit.
func (p *Product) CheckContainment() error {
	for _, v := range p.Variations {
		if v.Stock > p.Stock {
			return &ContainmentError{
				ProductID: p.ID,
				Variation: v.Name,
				VarStock:  v.Stock,
				Total:     p.Stock,
			}
		}
	}
	return nil
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Save(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
