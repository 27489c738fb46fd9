package chain

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Custom error 1 means an under-funded source in both the token and the
// system program.
const (
	tokenErrInsufficientFunds  = 1
	systemErrInsufficientFunds = 1
)

// TxError is an on-chain transaction failure, either from preflight
// simulation or from the confirmed transaction.
type TxError struct {
	Signature solana.Signature
	// Instruction is the index of the failing top-level instruction, -1 if unknown.
	Instruction int
	// Program is the top-level program of the failing instruction, if known.
	Program solana.PublicKey
	// Custom holds the program's custom error code when it raised one.
	Custom *uint32
	// Kind is the runtime's error name for non-custom failures.
	Kind string
	Logs []string
}

func (e *TxError) Error() string {
	switch {
	case e.Custom != nil:
		return fmt.Sprintf("instruction %d failed: custom program error %d", e.Instruction, *e.Custom)
	case e.Kind != "":
		return fmt.Sprintf("instruction %d failed: %s", e.Instruction, e.Kind)
	default:
		return "transaction failed"
	}
}

// CustomCode returns the custom error code when present.
func (e *TxError) CustomCode() (uint32, bool) {
	if e.Custom == nil {
		return 0, false
	}
	return *e.Custom, true
}

// FailureKind classifies an on-chain failure.
type FailureKind int

const (
	FailureUnclassified FailureKind = iota
	FailureHookRejected
	FailureInsufficientFunds
)

func (k FailureKind) String() string {
	switch k {
	case FailureHookRejected:
		return "hook_rejected"
	case FailureInsufficientFunds:
		return "insufficient_funds"
	default:
		return "unclassified"
	}
}

// Failure is the classification result with a human-readable reason.
type Failure struct {
	Kind   FailureKind
	Reason string
}

// Classify attributes a transaction failure. The innermost failing program is
// taken from the first "Program <id> failed" log line, falling back to the
// top-level program. It never panics on unexpected logs; unknown shapes
// degrade to FailureUnclassified with a generic reason.
func Classify(txErr *TxError, hookProgram solana.PublicKey) Failure {
	if txErr == nil {
		return Failure{Kind: FailureUnclassified, Reason: "transaction failed"}
	}

	failing, detail := innermostFailure(txErr.Logs)
	if failing.IsZero() {
		failing = txErr.Program
	}
	reason := detail
	if reason == "" {
		reason = txErr.Error()
	}

	switch {
	case !hookProgram.IsZero() && failing.Equals(hookProgram):
		if msg := programLogError(txErr.Logs); msg != "" {
			reason = msg
		}
		return Failure{Kind: FailureHookRejected, Reason: reason}
	case failing.Equals(Token2022ProgramID) && txErr.Custom != nil && *txErr.Custom == tokenErrInsufficientFunds:
		return Failure{Kind: FailureInsufficientFunds, Reason: "insufficient token funds"}
	case failing.Equals(SystemProgramID) && txErr.Custom != nil && *txErr.Custom == systemErrInsufficientFunds:
		return Failure{Kind: FailureInsufficientFunds, Reason: "insufficient lamports"}
	case txErr.Kind == "InsufficientFundsForFee" || txErr.Kind == "InsufficientFundsForRent":
		return Failure{Kind: FailureInsufficientFunds, Reason: txErr.Kind}
	}
	return Failure{Kind: FailureUnclassified, Reason: reason}
}

// innermostFailure scans logs for the first "Program <id> failed: <detail>" line.
func innermostFailure(logs []string) (solana.PublicKey, string) {
	for _, line := range logs {
		rest, ok := strings.CutPrefix(line, "Program ")
		if !ok {
			continue
		}
		id, detail, ok := strings.Cut(rest, " failed")
		if !ok || strings.Contains(id, " ") {
			continue
		}
		pk, err := solana.PublicKeyFromBase58(id)
		if err != nil {
			continue
		}
		return pk, strings.TrimSpace(strings.TrimPrefix(detail, ":"))
	}
	return solana.PublicKey{}, ""
}

// programLogError returns the message of the first Anchor "Error Message:" log.
func programLogError(logs []string) string {
	for _, line := range logs {
		if _, msg, ok := strings.Cut(line, "Error Message: "); ok {
			return strings.TrimSuffix(strings.TrimSpace(msg), ".")
		}
	}
	return ""
}
