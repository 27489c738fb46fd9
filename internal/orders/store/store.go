// Package store is the read index of purchase orders. It mirrors ledger
// records for listing and never decides a transition.
package store

import (
	"bytes"
	"slices"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/orders/models"
)

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status *models.Status
	Buyer  *solana.PublicKey
	Mint   *solana.PublicKey
	Limit  int
}

// DefaultLimit caps List when Filter.Limit is zero.
const DefaultLimit = 100

func (f Filter) matches(o *models.Order) bool {
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	if f.Buyer != nil && !o.Buyer.Equals(*f.Buyer) {
		return false
	}
	if f.Mint != nil && !o.Mint.Equals(*f.Mint) {
		return false
	}
	return true
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	if o.ProcessedBy != nil {
		pk := *o.ProcessedBy
		c.ProcessedBy = &pk
	}
	if o.ApprovalTx != nil {
		sig := *o.ApprovalTx
		c.ApprovalTx = &sig
	}
	return &c
}

// sortNewestFirst orders by creation time, address breaking ties.
func sortNewestFirst(orders []*models.Order) {
	slices.SortFunc(orders, func(a, b *models.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.Address[:], b.Address[:])
	})
}
