package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/wakurelay/types"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	KeySize   = 32
	NonceSize = 24

	// token address || 32-byte big-endian amount
	notePlaintextSize = common.AddressLength + 32
)

// NoteDecoder decrypts output notes against the relayer's own keys. Notes
// that are not addressed to the relayer are skipped, not reported as errors.
type NoteDecoder interface {
	DecryptNotes(ctx context.Context, chain types.ChainRef, ciphertexts []CommitmentCiphertext) ([]types.Note, error)
}

// BoxNoteDecoder opens notes sealed with nacl box to a curve25519 viewing key.
type BoxNoteDecoder struct {
	viewingKey *[KeySize]byte
}

func NewBoxNoteDecoder(viewingKey *[KeySize]byte) *BoxNoteDecoder {
	return &BoxNoteDecoder{viewingKey: viewingKey}
}

// ViewingKeyFromHex parses a hex curve25519 private key.
func ViewingKeyFromHex(s string) (*[KeySize]byte, error) {
	raw := common.FromHex(s)
	if len(raw) != KeySize {
		return nil, fmt.Errorf("viewing key must be %d bytes, got %d", KeySize, len(raw))
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}

// ViewingPublicKey derives the public key notes must be sealed to.
func ViewingPublicKey(private *[KeySize]byte) (*[KeySize]byte, error) {
	raw, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive viewing public key: %w", err)
	}
	var public [KeySize]byte
	copy(public[:], raw)
	return &public, nil
}

func (d *BoxNoteDecoder) DecryptNotes(_ context.Context, _ types.ChainRef, ciphertexts []CommitmentCiphertext) ([]types.Note, error) {
	var notes []types.Note
	for i := range ciphertexts {
		note, ok := d.open(&ciphertexts[i])
		if ok {
			notes = append(notes, note)
		}
	}
	return notes, nil
}

func (d *BoxNoteDecoder) open(c *CommitmentCiphertext) (types.Note, bool) {
	if len(c.Ciphertext) < NonceSize+box.Overhead {
		return types.Note{}, false
	}
	var nonce [NonceSize]byte
	copy(nonce[:], c.Ciphertext[:NonceSize])

	ephemeral := c.EphemeralKey
	plaintext, ok := box.Open(nil, c.Ciphertext[NonceSize:], &nonce, &ephemeral, d.viewingKey)
	if !ok || len(plaintext) != notePlaintextSize {
		return types.Note{}, false
	}

	return types.Note{
		TokenAddress: common.BytesToAddress(plaintext[:common.AddressLength]),
		Amount:       new(big.Int).SetBytes(plaintext[common.AddressLength:]),
	}, true
}

// SealNote encrypts a note to a receiver's viewing public key with a fresh
// ephemeral key. It is what requesters do when paying a relayer.
func SealNote(note types.Note, receiver *[KeySize]byte) (CommitmentCiphertext, error) {
	if note.Amount == nil || note.Amount.Sign() < 0 || note.Amount.BitLen() > 256 {
		return CommitmentCiphertext{}, fmt.Errorf("note amount out of range")
	}

	ephemeralPublic, ephemeralPrivate, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return CommitmentCiphertext{}, err
	}

	plaintext := make([]byte, notePlaintextSize)
	copy(plaintext, note.TokenAddress.Bytes())
	note.Amount.FillBytes(plaintext[common.AddressLength:])

	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return CommitmentCiphertext{}, err
	}

	return CommitmentCiphertext{
		Ciphertext:   box.Seal(nonce[:], plaintext, &nonce, receiver, ephemeralPrivate),
		EphemeralKey: *ephemeralPublic,
	}, nil
}
