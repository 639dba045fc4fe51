// Package ledger holds the stock mutation rules shared by every store
// implementation: the sale-side decrement and the receipt-side increment with
// weighted-average cost recompute. Both functions are pure; callers apply the
// returned product inside their own transactional write.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/domain"
	"github.com/KayZee52/SMEs-Toolkit-sub000/internal/store"
)

// ApplySale decrements stock for a sale of the given quantity. The product is
// returned unchanged alongside an error when the quantity is invalid or
// exceeds available stock, so stock can never go negative.
func ApplySale(product domain.Product, quantity int, at time.Time) (domain.Product, error) {
	if quantity < 1 {
		return product, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	if quantity > product.Stock {
		return product, fmt.Errorf("%w: requested %d, available %d", store.ErrInsufficientStock, quantity, product.Stock)
	}

	product.Stock -= quantity
	product.LastUpdatedAt = at
	return product, nil
}

// Receive adds a received lot to stock and recomputes unit cost as the
// quantity-weighted average of the existing stock and the new lot. When the
// product had no stock the new lot's cost becomes the cost outright.
func Receive(product domain.Product, quantityAdded int, costPerUnit decimal.Decimal, at time.Time) (domain.Product, error) {
	if quantityAdded < 1 {
		return product, fmt.Errorf("%w: quantity added must be at least 1", store.ErrValidation)
	}
	if costPerUnit.IsNegative() {
		return product, fmt.Errorf("%w: cost per unit must not be negative", store.ErrValidation)
	}

	oldStock := decimal.NewFromInt(int64(product.Stock))
	added := decimal.NewFromInt(int64(quantityAdded))

	if product.Stock == 0 {
		product.Cost = costPerUnit
	} else {
		existingValue := oldStock.Mul(product.Cost)
		receivedValue := added.Mul(costPerUnit)
		product.Cost = existingValue.Add(receivedValue).Div(oldStock.Add(added))
	}

	product.Stock += quantityAdded
	product.LastUpdatedAt = at
	return product, nil
}
