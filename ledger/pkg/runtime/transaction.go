package runtime

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

const (
	MaxAccountsPerInstruction = 64
	MaxInstructionDataLen     = 10 * 1024
)

type AccountMeta struct {
	PublicKey  solana.PublicKey `json:"publicKey"`
	IsSigner   bool             `json:"isSigner"`
	IsWritable bool             `json:"isWritable"`
}

// NewAccountMeta mirrors solana.NewAccountMeta argument order.
func NewAccountMeta(pubkey solana.PublicKey, isWritable, isSigner bool) AccountMeta {
	return AccountMeta{PublicKey: pubkey, IsSigner: isSigner, IsWritable: isWritable}
}

type Instruction struct {
	ProgramID solana.PublicKey `json:"programId"`
	Accounts  []AccountMeta    `json:"accounts"`
	Data      []byte           `json:"data"`
}

// Message is the signed portion of a transaction. The nonce makes otherwise identical
// instructions produce distinct signatures.
type Message struct {
	Nonce       uuid.UUID        `json:"nonce"`
	Signer      solana.PublicKey `json:"signer"`
	Instruction Instruction      `json:"instruction"`
}

func NewMessage(signer solana.PublicKey, ix Instruction) *Message {
	return &Message{
		Nonce:       uuid.New(),
		Signer:      signer,
		Instruction: ix,
	}
}

func (m *Message) MarshalWithEncoder(encoder *bin.Encoder) error {
	if len(m.Instruction.Accounts) > MaxAccountsPerInstruction {
		return fmt.Errorf("%w: %d accounts", ErrMalformedTransaction, len(m.Instruction.Accounts))
	}
	if len(m.Instruction.Data) > MaxInstructionDataLen {
		return fmt.Errorf("%w: %d bytes of instruction data", ErrMalformedTransaction, len(m.Instruction.Data))
	}
	if err := encoder.WriteBytes(m.Nonce[:], false); err != nil {
		return err
	}
	if err := encoder.WriteBytes(m.Signer[:], false); err != nil {
		return err
	}
	if err := encoder.WriteBytes(m.Instruction.ProgramID[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint32(uint32(len(m.Instruction.Accounts)), binary.LittleEndian); err != nil {
		return err
	}
	for _, meta := range m.Instruction.Accounts {
		if err := encoder.WriteBytes(meta.PublicKey[:], false); err != nil {
			return err
		}
		if err := encoder.WriteBool(meta.IsSigner); err != nil {
			return err
		}
		if err := encoder.WriteBool(meta.IsWritable); err != nil {
			return err
		}
	}
	if err := encoder.WriteUint32(uint32(len(m.Instruction.Data)), binary.LittleEndian); err != nil {
		return err
	}
	return encoder.WriteBytes(m.Instruction.Data, false)
}

func (m *Message) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	nonce, err := decoder.ReadNBytes(16)
	if err != nil {
		return fmt.Errorf("failed to read nonce: %w", err)
	}
	copy(m.Nonce[:], nonce)

	signer, err := decoder.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return fmt.Errorf("failed to read signer: %w", err)
	}
	m.Signer = solana.PublicKeyFromBytes(signer)

	programID, err := decoder.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return fmt.Errorf("failed to read program id: %w", err)
	}
	m.Instruction.ProgramID = solana.PublicKeyFromBytes(programID)

	numAccounts, err := decoder.ReadUint32(binary.LittleEndian)
	if err != nil {
		return fmt.Errorf("failed to read account count: %w", err)
	}
	if numAccounts > MaxAccountsPerInstruction {
		return fmt.Errorf("%w: %d accounts", ErrMalformedTransaction, numAccounts)
	}
	m.Instruction.Accounts = make([]AccountMeta, 0, numAccounts)
	for i := uint32(0); i < numAccounts; i++ {
		key, err := decoder.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return fmt.Errorf("failed to read account %d: %w", i, err)
		}
		isSigner, err := decoder.ReadBool()
		if err != nil {
			return fmt.Errorf("failed to read account %d signer flag: %w", i, err)
		}
		isWritable, err := decoder.ReadBool()
		if err != nil {
			return fmt.Errorf("failed to read account %d writable flag: %w", i, err)
		}
		m.Instruction.Accounts = append(m.Instruction.Accounts, AccountMeta{
			PublicKey:  solana.PublicKeyFromBytes(key),
			IsSigner:   isSigner,
			IsWritable: isWritable,
		})
	}

	dataLen, err := decoder.ReadUint32(binary.LittleEndian)
	if err != nil {
		return fmt.Errorf("failed to read data length: %w", err)
	}
	if dataLen > MaxInstructionDataLen {
		return fmt.Errorf("%w: %d bytes of instruction data", ErrMalformedTransaction, dataLen)
	}
	data, err := decoder.ReadNBytes(int(dataLen))
	if err != nil {
		return fmt.Errorf("failed to read instruction data: %w", err)
	}
	m.Instruction.Data = append([]byte(nil), data...)
	return nil
}

// Bytes is the canonical encoding covered by the transaction signature.
func (m *Message) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type Transaction struct {
	Signature solana.Signature `json:"signature"`
	Message   Message          `json:"message"`
}

// NewTransaction builds a single-instruction transaction signed by key.
func NewTransaction(key solana.PrivateKey, ix Instruction) (*Transaction, error) {
	tx := &Transaction{Message: *NewMessage(key.PublicKey(), ix)}
	if err := tx.Sign(key); err != nil {
		return nil, err
	}
	return tx, nil
}

func (tx *Transaction) Sign(key solana.PrivateKey) error {
	if !key.PublicKey().Equals(tx.Message.Signer) {
		return fmt.Errorf("signing key %s does not match message signer %s", key.PublicKey(), tx.Message.Signer)
	}
	msg, err := tx.Message.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return fmt.Errorf("failed to sign message: %w", err)
	}
	tx.Signature = sig
	return nil
}

func (tx *Transaction) Verify() error {
	msg, err := tx.Message.Bytes()
	if err != nil {
		return err
	}
	if !tx.Signature.Verify(tx.Message.Signer, msg) {
		return ErrInvalidSignature
	}
	return nil
}

// MarshalBinary encodes the signature followed by the message.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	msg, err := tx.Message.Bytes()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(tx.Signature)+len(msg))
	out = append(out, tx.Signature[:]...)
	return append(out, msg...), nil
}

func UnmarshalTransaction(data []byte) (*Transaction, error) {
	decoder := bin.NewBorshDecoder(data)
	sig, err := decoder.ReadNBytes(solana.SignatureLength)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read signature: %v", ErrMalformedTransaction, err)
	}
	tx := &Transaction{Signature: solana.SignatureFromBytes(sig)}
	if err := tx.Message.UnmarshalWithDecoder(decoder); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if decoder.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, decoder.Remaining())
	}
	return tx, nil
}
