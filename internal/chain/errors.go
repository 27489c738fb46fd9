package chain

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	dErrors "srwa/pkg/domain-errors"
)

// SubmitError turns a Submit failure into a coded error. On-chain failures
// are classified against hookProgram; an unconfirmed submission becomes
// CodeConfirmationTimeout; anything else is a transport failure.
func SubmitError(err error, hookProgram solana.PublicKey, action string) error {
	if err == nil {
		return nil
	}
	var pending *PendingError
	if errors.As(err, &pending) {
		return dErrors.Wrap(err, dErrors.CodeConfirmationTimeout,
			action+": confirmation not observed, re-check signature "+pending.Signature.String())
	}
	var txErr *TxError
	if errors.As(err, &txErr) {
		f := Classify(txErr, hookProgram)
		switch f.Kind {
		case FailureHookRejected:
			return dErrors.Wrap(err, dErrors.CodeComplianceRejected, action+": rejected by transfer hook: "+f.Reason)
		case FailureInsufficientFunds:
			return dErrors.Wrap(err, dErrors.CodeInsufficientFunds, action+": "+f.Reason)
		default:
			return dErrors.Wrap(err, dErrors.CodeOnChainUnclassified, action+": "+f.Reason)
		}
	}
	if errors.Is(err, ErrConfirmationTimeout) {
		return dErrors.Wrap(err, dErrors.CodeConfirmationTimeout, action+": confirmation not observed")
	}
	return dErrors.Wrap(err, dErrors.CodeSubmissionFailed, action+": submission failed")
}

// ParsePublicKey decodes a base58 address supplied by a caller. Failures are
// validation errors naming field.
func ParsePublicKey(field, value string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeValidation, field+" is not a valid base58 address")
	}
	return pk, nil
}
