package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srwa/internal/chain"
)

func decodeJSON(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestDecodeTransactionError(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	ixs := []solana.Instruction{
		solana.NewInstruction(chain.Token2022ProgramID, nil, nil),
		solana.NewInstruction(program, nil, nil),
	}

	t.Run("custom instruction error", func(t *testing.T) {
		out := decodeTransactionError(decodeJSON(t, `{"InstructionError":[1,{"Custom":6001}]}`), ixs)
		assert.Equal(t, 1, out.Instruction)
		assert.Equal(t, program, out.Program)
		code, ok := out.CustomCode()
		require.True(t, ok)
		assert.Equal(t, uint32(6001), code)
	})

	t.Run("named instruction error", func(t *testing.T) {
		out := decodeTransactionError(decodeJSON(t, `{"InstructionError":[0,"InvalidAccountData"]}`), ixs)
		assert.Equal(t, chain.Token2022ProgramID, out.Program)
		assert.Equal(t, "InvalidAccountData", out.Kind)
	})

	t.Run("transaction level error", func(t *testing.T) {
		out := decodeTransactionError(decodeJSON(t, `"AccountNotFound"`), ixs)
		assert.Equal(t, -1, out.Instruction)
		assert.Equal(t, "AccountNotFound", out.Kind)
	})

	t.Run("out of range index keeps program empty", func(t *testing.T) {
		out := decodeTransactionError(decodeJSON(t, `{"InstructionError":[7,{"Custom":1}]}`), ixs)
		assert.True(t, out.Program.IsZero())
	})
}

func TestPreflightError(t *testing.T) {
	ixs := []solana.Instruction{solana.NewInstruction(chain.Token2022ProgramID, nil, nil)}

	t.Run("simulation failure carries logs", func(t *testing.T) {
		err := &jsonrpc.RPCError{
			Code:    -32002,
			Message: "Transaction simulation failed",
			Data: map[string]any{
				"err":  map[string]any{"InstructionError": []any{float64(0), map[string]any{"Custom": float64(1)}}},
				"logs": []any{"Program log: Error: insufficient funds"},
			},
		}
		txErr := preflightError(err, ixs)
		require.NotNil(t, txErr)
		assert.Equal(t, chain.FailureInsufficientFunds, chain.Classify(txErr, solana.PublicKey{}).Kind)
		assert.Len(t, txErr.Logs, 1)
	})

	t.Run("transport error is not a preflight failure", func(t *testing.T) {
		assert.Nil(t, preflightError(assert.AnError, ixs))
	})
}

// fakeNode answers the JSON-RPC calls Submit makes. The transaction is
// accepted but never shows up in signature statuses.
func fakeNode(t *testing.T, lastValid, height uint64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var result any
		switch req.Method {
		case "getLatestBlockhash":
			result = map[string]any{
				"context": map[string]any{"slot": 1},
				"value":   map[string]any{"blockhash": solana.Hash{2}.String(), "lastValidBlockHeight": lastValid},
			}
		case "sendTransaction":
			result = solana.Signature{1}.String()
		case "getSignatureStatuses":
			result = map[string]any{"context": map[string]any{"slot": 1}, "value": []any{nil}}
		case "getBlockHeight":
			result = height
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestSubmitTimeoutCarriesLastValidBlockHeight(t *testing.T) {
	node := fakeNode(t, 3090, 3000)
	defer node.Close()

	payer := solana.NewWallet().PrivateKey
	keys := Keyring{}
	keys.Add(payer)
	client := New(node.URL, keys,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConfirmTimeout(50*time.Millisecond),
		WithPollInterval(10*time.Millisecond),
	)

	ix := solana.NewInstruction(solana.NewWallet().PublicKey(), solana.AccountMetaSlice{}, []byte{1})
	_, err := client.Submit(context.Background(), payer.PublicKey(), ix)
	var pending *chain.PendingError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, solana.Signature{1}, pending.Signature)
	assert.Equal(t, uint64(3090), pending.LastValidBlockHeight)

	height, err := client.BlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), height)
}
