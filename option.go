package wakurelay

import (
	"github.com/vitwit/wakurelay/feecache"
	"github.com/vitwit/wakurelay/logger"
	"github.com/vitwit/wakurelay/metrics"
	"github.com/vitwit/wakurelay/relay"
	"github.com/vitwit/wakurelay/settlement"
	"github.com/vitwit/wakurelay/verification"
)

type Option func(*Relayer)

func WithLogger(l logger.Logger) Option {
	return func(r *Relayer) {
		r.logger = l
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Relayer) {
		r.metrics = m
	}
}

// WithTransport replaces the waku JSON-RPC client.
func WithTransport(t relay.Transport) Option {
	return func(r *Relayer) {
		r.transport = t
	}
}

// WithExecutor replaces on-chain submission. When the executor also
// implements settlement.BalanceReader, it drives fee broadcast availability.
func WithExecutor(e settlement.Executor) Option {
	return func(r *Relayer) {
		r.executor = e
	}
}

func WithNoteDecoder(d verification.NoteDecoder) Option {
	return func(r *Relayer) {
		r.notes = d
	}
}

func WithPriceSource(s feecache.PriceSource) Option {
	return func(r *Relayer) {
		r.priceSource = s
	}
}
