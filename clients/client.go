package clients

import (
	"context"

	"github.com/vitwit/wakurelay/types"
)

// Client is a per-chain connection owned by the relayer.
type Client interface {
	GetChain() types.ChainRef
	VerifyChain(ctx context.Context) error
	Close()
}
