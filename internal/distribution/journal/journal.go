// Package journal records distribution progress per idempotency key so a
// retried distribution never transfers twice.
//
// Begin takes an in-flight lease when the key is free, its lease has expired,
// or it is Pending (the caller then re-checks the pending signature before
// retrying). Otherwise it reports the existing entry without acquiring.
// Every later write names the lease it was made under and fails with
// sentinel.ErrConflict once the key has changed hands.
package journal

import (
	"time"

	"github.com/google/uuid"

	"srwa/internal/distribution/models"
)

func decide(key string, prior *models.Entry, now time.Time, ttl time.Duration) (*models.Entry, *models.Lease) {
	if prior != nil {
		switch {
		case prior.State == models.StateCompleted:
			return nil, nil
		case prior.LeaseHeld(now):
			return nil, nil
		}
	}
	lease := &models.Lease{Key: key, Token: uuid.NewString()}
	next := &models.Entry{Key: key, State: models.StateInFlight, LeaseToken: lease.Token, LeaseExpiresAt: now.Add(ttl)}
	if prior != nil {
		// An expired lease may have been re-checking a pending signature.
		next.Signature = prior.Signature
		next.LastValidBlockHeight = prior.LastValidBlockHeight
	}
	return next, lease
}

func pendingEntry(lease *models.Lease, p models.Pending) *models.Entry {
	return &models.Entry{
		Key:                  lease.Key,
		State:                models.StatePending,
		Signature:            p.Signature,
		LastValidBlockHeight: p.LastValidBlockHeight,
	}
}

func completedEntry(lease *models.Lease, receipt *models.Receipt) *models.Entry {
	return &models.Entry{
		Key:       lease.Key,
		State:     models.StateCompleted,
		Signature: receipt.Signature,
		Receipt:   receipt,
	}
}

func renewed(e *models.Entry, now time.Time, ttl time.Duration) *models.Entry {
	next := *e
	next.LeaseExpiresAt = now.Add(ttl)
	return &next
}
