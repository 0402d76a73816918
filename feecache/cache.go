package feecache

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/vitwit/wakurelay/types"
	"go.uber.org/atomic"
	"lukechampine.com/frand"
)

const (
	// DefaultHistorySize bounds the number of snapshots kept for feeCacheID lookups.
	DefaultHistorySize = 512

	feeCacheIDBytes = 16
)

// Snapshot is an immutable set of unit fees for one chain. A unit fee is the
// amount of a token, in its base units, owed per whole gas token of cost.
type Snapshot struct {
	Chain       types.ChainRef
	ID          string
	Fees        map[string]*big.Int
	GasDecimals int32
	CreatedAt   time.Time
	Expiration  time.Time
}

// Fee returns the unit fee for a token. Addresses are matched case-insensitively.
func (s *Snapshot) Fee(tokenAddress string) (*big.Int, bool) {
	fee, ok := s.Fees[strings.ToLower(tokenAddress)]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(fee), true
}

func (s *Snapshot) Expired(now time.Time) bool {
	return !now.Before(s.Expiration)
}

// NewFeeCacheID returns a random identifier for a snapshot.
func NewFeeCacheID() string {
	return hex.EncodeToString(frand.Bytes(feeCacheIDBytes))
}

// Cache is the authoritative fee cache. Each chain's current snapshot is
// swapped atomically; readers never take a lock held by a writer doing I/O.
// Older snapshots stay resolvable by ID until they expire or are evicted.
type Cache struct {
	chains  sync.Map // types.ChainRef -> *atomic.Pointer[Snapshot]
	history *lru.Cache
	now     func() time.Time
}

func New(historySize int) (*Cache, error) {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	history, err := lru.New(historySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create fee history: %w", err)
	}
	return &Cache{history: history, now: time.Now}, nil
}

func (c *Cache) slot(chain types.ChainRef) *atomic.Pointer[Snapshot] {
	if p, ok := c.chains.Load(chain); ok {
		return p.(*atomic.Pointer[Snapshot])
	}
	p, _ := c.chains.LoadOrStore(chain, atomic.NewPointer[Snapshot](nil))
	return p.(*atomic.Pointer[Snapshot])
}

// Publish makes fees the current snapshot for chain, valid for ttl. The
// input map is copied and token addresses are lowercased.
func (c *Cache) Publish(chain types.ChainRef, fees map[string]*big.Int, gasDecimals int32, ttl time.Duration) *Snapshot {
	now := c.now()
	copied := make(map[string]*big.Int, len(fees))
	for token, fee := range fees {
		copied[strings.ToLower(token)] = new(big.Int).Set(fee)
	}

	snap := &Snapshot{
		Chain:       chain,
		ID:          NewFeeCacheID(),
		Fees:        copied,
		GasDecimals: gasDecimals,
		CreatedAt:   now,
		Expiration:  now.Add(ttl),
	}

	c.history.Add(snap.ID, snap)
	c.slot(chain).Store(snap)
	return snap
}

// Current returns the active snapshot for chain.
func (c *Cache) Current(chain types.ChainRef) (*Snapshot, error) {
	snap := c.slot(chain).Load()
	if snap == nil {
		return nil, types.NewError(types.ErrCodeStaleFeeCache, fmt.Sprintf("no fees cached for chain %s", chain), nil)
	}
	return snap, nil
}

// Lookup resolves a feeCacheID to the snapshot it was issued for. Unknown,
// expired and cross-chain IDs are all STALE_FEE_CACHE.
func (c *Cache) Lookup(chain types.ChainRef, feeCacheID string) (*Snapshot, error) {
	v, ok := c.history.Get(feeCacheID)
	if !ok {
		return nil, types.NewError(types.ErrCodeStaleFeeCache, fmt.Sprintf("unknown fee cache id %q", feeCacheID), nil)
	}
	snap := v.(*Snapshot)
	if snap.Chain != chain {
		return nil, types.NewError(types.ErrCodeStaleFeeCache, fmt.Sprintf("fee cache id %q is not for chain %s", feeCacheID, chain), nil)
	}
	if snap.Expired(c.now()) {
		c.history.Remove(feeCacheID)
		return nil, types.NewError(types.ErrCodeStaleFeeCache, fmt.Sprintf("fee cache id %q expired", feeCacheID), nil)
	}
	return snap, nil
}

// Reset drops the current snapshot for chain. Its ID stays resolvable
// until it expires.
func (c *Cache) Reset(chain types.ChainRef) {
	c.slot(chain).Store(nil)
}
