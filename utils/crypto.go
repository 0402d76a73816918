package utils

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverPublicKey recovers the public key that produced signature over hash.
func RecoverPublicKey(hash []byte, signature string) (*ecdsa.PublicKey, error) {
	// Remove 0x prefix if present
	signature = strings.TrimPrefix(signature, "0x")

	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}

	if len(sigBytes) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sigBytes))
	}

	// Adjust recovery ID for Ethereum
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	pubKey, err := crypto.SigToPub(hash, sigBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to recover public key: %w", err)
	}
	return pubKey, nil
}

// PrivateKeyFromHex creates a private key from hex string
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	return crypto.HexToECDSA(hexKey)
}

// AddressFromPrivateKey derives the Ethereum address from a private key
func AddressFromPrivateKey(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// SigningPublicKey is the compressed public key advertised next to signed
// messages, hex encoded.
func SigningPublicKey(privateKey *ecdsa.PrivateKey) string {
	return hexutil.Encode(crypto.CompressPubkey(&privateKey.PublicKey))
}

// SignHash signs a hash with the given private key
func SignHash(hash []byte, privateKey *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign hash: %w", err)
	}

	return hexutil.Encode(signature), nil
}

// SignMessage signs message bytes personal_sign style.
func SignMessage(message []byte, privateKey *ecdsa.PrivateKey) (string, error) {
	return SignHash(accounts.TextHash(message), privateKey)
}

// VerifyMessage checks a SignMessage signature against a hex compressed
// public key.
func VerifyMessage(message []byte, signature string, signingKey string) (bool, error) {
	pubKey, err := RecoverPublicKey(accounts.TextHash(message), signature)
	if err != nil {
		return false, err
	}

	expected, err := hexutil.Decode(signingKey)
	if err != nil {
		return false, fmt.Errorf("invalid signing key: %w", err)
	}
	return strings.EqualFold(hexutil.Encode(crypto.CompressPubkey(pubKey)), hexutil.Encode(expected)), nil
}

// ValidateAddress checks if a string is a valid Ethereum address
func ValidateAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress lowercases a valid address for use as a map key.
func NormalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return ""
	}
	return strings.ToLower(common.HexToAddress(address).Hex())
}
