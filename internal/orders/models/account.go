package models

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
)

// OrderSeed prefixes order addresses: ["purchase_order", mint, buyer, nonce LE].
const OrderSeed = "purchase_order"

// AccountSpace is the allocated size of an order account.
const AccountSpace = 8 + 1 + 32 + 32 + 8 + 8 + 8 + 1 + 8 + 8 + (1 + 32) + (1 + 64) + (1 + 4 + MaxRejectionReasonLen)

// AccountDiscriminator tags order accounts.
var AccountDiscriminator = chain.AccountDiscriminator("PurchaseOrder")

// Address derives the order account for buyer, mint and nonce.
func Address(program, mint, buyer solana.PublicKey, nonce int64) (solana.PublicKey, uint8, error) {
	return chain.FindPDA(program, []byte(OrderSeed), mint[:], buyer[:], chain.I64Seed(nonce))
}

// NewNonce returns a creation nonce for t in unix microseconds: the
// millisecond of t followed by a random sub-millisecond suffix, so one buyer
// creating several orders in the same millisecond gets distinct addresses.
func NewNonce(t time.Time) int64 {
	return t.UnixMilli()*1000 + rand.Int64N(1000)
}

// NonceTime converts a creation nonce back to its creation millisecond.
func NonceTime(nonce int64) time.Time {
	return time.UnixMilli(nonce / 1000).UTC()
}

// DecodeAccount parses order account bytes.
func DecodeAccount(address solana.PublicKey, data []byte) (*Order, error) {
	if !chain.HasDiscriminator(data, AccountDiscriminator) {
		return nil, fmt.Errorf("order %s: %w", address, chain.ErrMalformedAccount)
	}
	dec := bin.NewBorshDecoder(data[8:])
	o := &Order{Address: address}

	var err error
	read := func(f func() error) {
		if err == nil {
			err = f()
		}
	}
	read(func() (e error) { o.Bump, e = dec.ReadUint8(); return })
	read(func() error { return readKey(dec, &o.Buyer) })
	read(func() error { return readKey(dec, &o.Mint) })
	read(func() (e error) { o.Quantity, e = dec.ReadUint64(bin.LE); return })
	read(func() (e error) { o.UnitPrice, e = dec.ReadUint64(bin.LE); return })
	read(func() (e error) { o.TotalEscrowed, e = dec.ReadUint64(bin.LE); return })
	read(func() error {
		s, e := dec.ReadUint8()
		o.Status = Status(s)
		return e
	})
	read(func() (e error) { o.Nonce, e = dec.ReadInt64(bin.LE); return })
	read(func() error {
		ts, e := dec.ReadInt64(bin.LE)
		o.UpdatedAt = time.Unix(ts, 0).UTC()
		return e
	})
	read(func() error {
		present, e := dec.ReadBool()
		if e != nil || !present {
			return e
		}
		var pk solana.PublicKey
		if e := readKey(dec, &pk); e != nil {
			return e
		}
		o.ProcessedBy = &pk
		return nil
	})
	read(func() error {
		present, e := dec.ReadBool()
		if e != nil || !present {
			return e
		}
		b, e := dec.ReadNBytes(64)
		if e != nil {
			return e
		}
		var sig solana.Signature
		copy(sig[:], b)
		o.ApprovalTx = &sig
		return nil
	})
	read(func() error {
		present, e := dec.ReadBool()
		if e != nil || !present {
			return e
		}
		n, e := dec.ReadUint32(bin.LE)
		if e != nil {
			return e
		}
		b, e := dec.ReadNBytes(int(n))
		o.RejectionReason = string(b)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("order %s: %w: %w", address, chain.ErrMalformedAccount, err)
	}
	o.CreatedAt = NonceTime(o.Nonce)
	return o, nil
}

func readKey(dec *bin.Decoder, out *solana.PublicKey) error {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return err
	}
	*out = solana.PublicKeyFromBytes(b)
	return nil
}

// EncodeAccount serializes o in the ledger layout, padded to AccountSpace.
func EncodeAccount(o *Order) ([]byte, error) {
	buf, err := encodeBody(o)
	if err != nil {
		return nil, err
	}
	out := make([]byte, AccountSpace)
	copy(out, buf)
	return out, nil
}

func encodeBody(o *Order) ([]byte, error) {
	data := make([]byte, 0, AccountSpace)
	data = append(data, AccountDiscriminator[:]...)
	data = append(data, o.Bump)
	data = append(data, o.Buyer[:]...)
	data = append(data, o.Mint[:]...)
	data = binary.LittleEndian.AppendUint64(data, o.Quantity)
	data = binary.LittleEndian.AppendUint64(data, o.UnitPrice)
	data = binary.LittleEndian.AppendUint64(data, o.TotalEscrowed)
	data = append(data, byte(o.Status))
	data = binary.LittleEndian.AppendUint64(data, uint64(o.Nonce))
	data = binary.LittleEndian.AppendUint64(data, uint64(o.UpdatedAt.Unix()))
	if o.ProcessedBy != nil {
		data = append(data, 1)
		data = append(data, o.ProcessedBy[:]...)
	} else {
		data = append(data, 0)
	}
	if o.ApprovalTx != nil {
		data = append(data, 1)
		data = append(data, o.ApprovalTx[:]...)
	} else {
		data = append(data, 0)
	}
	if o.RejectionReason != "" {
		if len(o.RejectionReason) > MaxRejectionReasonLen {
			return nil, fmt.Errorf("rejection reason exceeds %d bytes", MaxRejectionReasonLen)
		}
		data = append(data, 1)
		data = binary.LittleEndian.AppendUint32(data, uint32(len(o.RejectionReason)))
		data = append(data, o.RejectionReason...)
	} else {
		data = append(data, 0)
	}
	return data, nil
}
