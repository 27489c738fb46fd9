package models

import (
	"fmt"

	"srwa/pkg/platform/sentinel"
)

// ErrAddressTaken means an order already lives at the address a nonce derives.
var ErrAddressTaken = fmt.Errorf("order address %w", sentinel.ErrConflict)

// ProgramError is a custom error raised by the ledger program.
type ProgramError uint32

// Anchor numbers custom errors from 6000 in declaration order.
const (
	ErrAlreadyProcessed ProgramError = 6000 + iota
	ErrNotPending
	ErrInvalidQuantity
	ErrInvalidPrice
	ErrUnauthorizedCancel
	ErrUnauthorizedAdmin
	ErrInsufficientAdminTokens
	ErrRejectReasonTooLong
	ErrMathOverflow
)

var programErrorNames = map[ProgramError]string{
	ErrAlreadyProcessed:        "AlreadyProcessed",
	ErrNotPending:              "NotPending",
	ErrInvalidQuantity:         "InvalidQuantity",
	ErrInvalidPrice:            "InvalidPrice",
	ErrUnauthorizedCancel:      "UnauthorizedCancel",
	ErrUnauthorizedAdmin:       "UnauthorizedAdmin",
	ErrInsufficientAdminTokens: "InsufficientAdminTokens",
	ErrRejectReasonTooLong:     "RejectReasonTooLong",
	ErrMathOverflow:            "MathOverflow",
}

func (e ProgramError) String() string {
	if name, ok := programErrorNames[e]; ok {
		return name
	}
	return "Unknown"
}

// Known reports whether code is one of the ledger's custom errors.
func (e ProgramError) Known() bool {
	_, ok := programErrorNames[e]
	return ok
}
