package relay

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vitwit/wakurelay/feecache"
	"github.com/vitwit/wakurelay/types"
	"github.com/vitwit/wakurelay/utils"
)

// FeeSigner builds signed fee broadcasts.
type FeeSigner struct {
	key        *ecdsa.PrivateKey
	pubkey     string
	signingKey string
}

// NewFeeSigner creates a signer for the relayer identified by
// relayerAddress. The signing key is derived from key.
func NewFeeSigner(key *ecdsa.PrivateKey, relayerAddress string) *FeeSigner {
	return &FeeSigner{
		key:        key,
		pubkey:     relayerAddress,
		signingKey: utils.SigningPublicKey(key),
	}
}

// SigningKey is the hex compressed public key broadcasts are verified with.
func (s *FeeSigner) SigningKey() string {
	return s.signingKey
}

// SignFees builds the broadcast for a fee snapshot. Fee amounts are hex
// encoded and expiration is an absolute unix time in milliseconds.
func (s *FeeSigner) SignFees(snap *feecache.Snapshot, expiration time.Time) (*types.FeeMessage, error) {
	fees := make(map[string]string, len(snap.Fees))
	for token, fee := range snap.Fees {
		fees[token] = hexutil.EncodeBig(fee)
	}

	data := types.FeeMessageData{
		Fees:          fees,
		FeeExpiration: expiration.UnixMilli(),
		FeesID:        snap.ID,
		Pubkey:        s.pubkey,
		SigningKey:    s.signingKey,
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal fee data: %w", err)
	}

	signature, err := utils.SignMessage(encoded, s.key)
	if err != nil {
		return nil, err
	}
	return &types.FeeMessage{Data: encoded, Signature: signature}, nil
}

// VerifyFeeMessage checks that msg was signed by the signing key it
// advertises and returns its decoded data.
func VerifyFeeMessage(msg *types.FeeMessage) (*types.FeeMessageData, error) {
	var data types.FeeMessageData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return nil, types.NewError(types.ErrCodeMalformedMessage, "invalid fee message data", err)
	}

	ok, err := utils.VerifyMessage(msg.Data, msg.Signature, data.SigningKey)
	if err != nil {
		return nil, types.NewError(types.ErrCodeMalformedMessage, "invalid fee message signature", err)
	}
	if !ok {
		return nil, types.NewError(types.ErrCodeMalformedMessage, "fee message not signed by its signing key", nil)
	}
	if _, err := utils.ParseFees(data.Fees); err != nil {
		return nil, types.NewError(types.ErrCodeMalformedMessage, "invalid fee amounts", err)
	}
	return &data, nil
}
