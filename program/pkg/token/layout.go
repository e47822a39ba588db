// Package token is the fungible token ledger the research program moves value through.
// Mints and token accounts use the SPL byte layout, so an account's balance always sits
// at offset 64 as a little-endian u64.
package token

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	MintLen    = 82
	AccountLen = 165

	// AmountOffset is where a token account stores its balance.
	AmountOffset = 64
)

var ErrInvalidLayout = errors.New("invalid token layout")

type AccountState uint8

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

type Mint struct {
	MintAuthority   *solana.PublicKey `json:"mintAuthority"`
	Supply          uint64            `json:"supply"`
	Decimals        uint8             `json:"decimals"`
	IsInitialized   bool              `json:"isInitialized"`
	FreezeAuthority *solana.PublicKey `json:"freezeAuthority"`
}

// Account is a token balance. Owner is the authority allowed to move it.
type Account struct {
	Mint            solana.PublicKey  `json:"mint"`
	Owner           solana.PublicKey  `json:"owner"`
	Amount          uint64            `json:"amount"`
	Delegate        *solana.PublicKey `json:"delegate,omitempty"`
	State           AccountState      `json:"state"`
	IsNative        *uint64           `json:"isNative,omitempty"`
	DelegatedAmount uint64            `json:"delegatedAmount"`
	CloseAuthority  *solana.PublicKey `json:"closeAuthority,omitempty"`
}

func writeCOptionKey(enc *bin.Encoder, key *solana.PublicKey) error {
	if key == nil {
		if err := enc.WriteUint32(0, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteBytes(make([]byte, solana.PublicKeyLength), false)
	}
	if err := enc.WriteUint32(1, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes(key[:], false)
}

func readCOptionKey(dec *bin.Decoder) (*solana.PublicKey, error) {
	tag, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	key := solana.PublicKeyFromBytes(raw)
	return &key, nil
}

func (m *Mint) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, MintLen))
	enc := bin.NewBorshEncoder(buf)
	if err := writeCOptionKey(enc, m.MintAuthority); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(m.Supply, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(m.Decimals); err != nil {
		return nil, err
	}
	if err := enc.WriteBool(m.IsInitialized); err != nil {
		return nil, err
	}
	if err := writeCOptionKey(enc, m.FreezeAuthority); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Mint) Unmarshal(data []byte) error {
	if len(data) != MintLen {
		return fmt.Errorf("%w: mint is %d bytes", ErrInvalidLayout, len(data))
	}
	dec := bin.NewBorshDecoder(data)
	var err error
	if m.MintAuthority, err = readCOptionKey(dec); err != nil {
		return err
	}
	if m.Supply, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if m.Decimals, err = dec.ReadUint8(); err != nil {
		return err
	}
	if m.IsInitialized, err = dec.ReadBool(); err != nil {
		return err
	}
	m.FreezeAuthority, err = readCOptionKey(dec)
	return err
}

func (a *Account) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, AccountLen))
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(a.Mint[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(a.Owner[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(a.Amount, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := writeCOptionKey(enc, a.Delegate); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(uint8(a.State)); err != nil {
		return nil, err
	}
	var native uint64
	var nativeTag uint32
	if a.IsNative != nil {
		native, nativeTag = *a.IsNative, 1
	}
	if err := enc.WriteUint32(nativeTag, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(native, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(a.DelegatedAmount, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := writeCOptionKey(enc, a.CloseAuthority); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *Account) Unmarshal(data []byte) error {
	if len(data) != AccountLen {
		return fmt.Errorf("%w: token account is %d bytes", ErrInvalidLayout, len(data))
	}
	dec := bin.NewBorshDecoder(data)
	mint, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	a.Mint = solana.PublicKeyFromBytes(mint)
	owner, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	a.Owner = solana.PublicKeyFromBytes(owner)
	if a.Amount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if a.Delegate, err = readCOptionKey(dec); err != nil {
		return err
	}
	state, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	a.State = AccountState(state)
	nativeTag, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return err
	}
	native, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return err
	}
	a.IsNative = nil
	if nativeTag == 1 {
		a.IsNative = &native
	}
	if a.DelegatedAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	a.CloseAuthority, err = readCOptionKey(dec)
	return err
}

// AmountOf reads a token account balance without decoding the rest of the layout.
func AmountOf(data []byte) (uint64, error) {
	if len(data) < AmountOffset+8 {
		return 0, fmt.Errorf("%w: token account is %d bytes", ErrInvalidLayout, len(data))
	}
	return binary.LittleEndian.Uint64(data[AmountOffset : AmountOffset+8]), nil
}
