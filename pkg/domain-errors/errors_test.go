package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsChain(t *testing.T) {
	root := errors.New("rpc down")
	err := Wrap(root, CodeSubmissionFailed, "submit transfer")

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "submit transfer: rpc down", err.Error())
	assert.True(t, Is(err, CodeSubmissionFailed))
	assert.Equal(t, CategorySubmission, CategoryOf(err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestHasCodeSearchesInnerErrors(t *testing.T) {
	inner := New(CodeComplianceMissing, "recipient has no compliance record")
	outer := Wrap(fmt.Errorf("ensure recipient: %w", inner), CodeEnsureRegistrationFailed, "registration failed")

	assert.True(t, HasCode(outer, CodeComplianceMissing))
	assert.True(t, HasCode(outer, CodeEnsureRegistrationFailed))
	assert.False(t, Is(outer, CodeComplianceMissing))
	assert.False(t, HasCode(outer, CodeNotFound))
}

func TestCategories(t *testing.T) {
	cases := map[Code]Category{
		CodeInvalidAmount:                CategoryValidation,
		CodeNoSourceAccount:              CategoryAccountState,
		CodeInsufficientBalance:          CategoryAccountState,
		CodeComplianceInactive:           CategoryCompliance,
		CodeHookMetadataUnavailable:      CategoryHookResolution,
		CodeExtraAccountResolutionFailed: CategoryHookResolution,
		CodeConfirmationTimeout:          CategorySubmission,
		CodeComplianceRejected:           CategoryOnChain,
		CodeAlreadyFinalized:             CategoryConflict,
		Code("mystery"):                  CategoryInternal,
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			assert.Equal(t, want, code.Category())
		})
	}
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
