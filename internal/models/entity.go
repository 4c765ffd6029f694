// Package models defines the data types shared by the sync engine:
// the closed set of syncable entity kinds, the durable queue item,
// the cached entity projection and the per-kind sync metadata.
package models

import "fmt"

// EntityKind identifies one of the syncable entity collections.
type EntityKind string

const (
	KindProducts     EntityKind = "products"
	KindCategories   EntityKind = "categories"
	KindTransactions EntityKind = "transactions"
	KindCustomers    EntityKind = "customers"
	KindOrders       EntityKind = "orders"
	KindSettings     EntityKind = "settings"
)

// Kinds lists every known entity kind in a stable order.
func Kinds() []EntityKind {
	return []EntityKind{
		KindProducts, KindCategories, KindTransactions,
		KindCustomers, KindOrders, KindSettings,
	}
}

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindProducts, KindCategories, KindTransactions,
		KindCustomers, KindOrders, KindSettings:
		return true
	}
	return false
}

// ParseEntityKind converts s into an EntityKind or fails for unknown values.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind: %q", s)
	}
	return k, nil
}
