package models

import (
	"strings"

	dErrors "srwa/pkg/domain-errors"
)

// Status is the ledger state of an order. Values match the program's enum tags.
type Status uint8

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
	// StatusCancelled exists on the ledger but is never produced here.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// CanTransitionTo allows Pending to move to Approved or Rejected only.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus parses a status name.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	case "cancelled":
		return StatusCancelled, nil
	}
	return 0, dErrors.New(dErrors.CodeValidation, "unknown order status "+v)
}
