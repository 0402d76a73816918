package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ChainType classifies a network into a blockchain family.
type ChainType int

const (
	ChainEVM ChainType = 0
)

func (t ChainType) String() string {
	switch t {
	case ChainEVM:
		return "evm"
	default:
		return fmt.Sprintf("chaintype(%d)", int(t))
	}
}

// ChainRef identifies one blockchain network. It is comparable and is used
// as the key for fee caches, content topics and client lookup.
type ChainRef struct {
	Type ChainType `json:"type"`
	ID   uint64    `json:"id"`
}

// EVMChain is shorthand for an EVM ChainRef.
func EVMChain(id uint64) ChainRef {
	return ChainRef{Type: ChainEVM, ID: id}
}

func (c ChainRef) String() string {
	return fmt.Sprintf("%d:%d", int(c.Type), c.ID)
}

// IsEVM reports whether the chain settles through an EVM client.
func (c ChainRef) IsEVM() bool {
	return c.Type == ChainEVM
}

// ParseChainRef parses the "<type>:<id>" form produced by String. A bare
// numeric id is taken as an EVM chain.
func ParseChainRef(s string) (ChainRef, error) {
	s = strings.TrimSpace(s)
	typ, id, found := strings.Cut(s, ":")
	if !found {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return ChainRef{}, fmt.Errorf("invalid chain id %q: %w", s, err)
		}
		return EVMChain(n), nil
	}

	t, err := strconv.Atoi(typ)
	if err != nil {
		return ChainRef{}, fmt.Errorf("invalid chain type %q: %w", typ, err)
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return ChainRef{}, fmt.Errorf("invalid chain id %q: %w", id, err)
	}
	return ChainRef{Type: ChainType(t), ID: n}, nil
}

// GasModel is the fee-pricing scheme of a chain. It is fixed per chain.
type GasModel string

const (
	GasModelLegacy     GasModel = "legacy"
	GasModelDynamicFee GasModel = "dynamic"
)

func (m GasModel) Valid() bool {
	return m == GasModelLegacy || m == GasModelDynamicFee
}

// DefaultPubSubTopic is the waku pubsub topic relayers subscribe to.
const DefaultPubSubTopic = "/waku/2/default-waku/proto"
