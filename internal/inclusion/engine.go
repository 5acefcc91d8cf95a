// Package inclusion decides when backed shard candidates become pending,
// folds validator availability bitfields into per-candidate votes, and
// enacts candidates onto their shard once a supermajority of validators
// holds their data.
//
// Every batch entry point validates the whole batch before writing; a
// rejected batch leaves state untouched. Writes of one call are committed
// in a single pebble batch.
package inclusion

import (
	"log/slog"

	"ShardRelay/internal/config"
	"ShardRelay/internal/logger"
	"ShardRelay/internal/primitives"
	"ShardRelay/internal/signing"
	"ShardRelay/internal/storage"
)

// ConfigSource provides the active host configuration.
type ConfigSource interface {
	Config() config.HostConfiguration
}

// Host is the relay chain context the engine runs in.
type Host interface {
	// ParentHash is the hash of the relay parent of the round being built.
	ParentHash() primitives.Hash

	// Round is the number of the round being built.
	Round() primitives.Round
}

// Paras is the shard-state manager.
type Paras interface {
	Parachains() []primitives.ShardID
	PersistedValidationData(id primitives.ShardID, relayParentNumber primitives.Round) (primitives.PersistedValidationData, bool, error)
	LastCodeUpgrade(id primitives.ShardID, includeFuture bool) (primitives.Round, bool)
	ScheduleCodeUpgrade(id primitives.ShardID, code primitives.ValidationCode, at primitives.Round) error
	NoteNewHead(id primitives.ShardID, head primitives.HeadData, round primitives.Round) error
}

// CoreLookup maps an availability core to the shard occupying it.
type CoreLookup func(primitives.CoreIndex) (primitives.ShardID, bool)

// GroupLookup maps a backing group to its validator indices.
type GroupLookup func(primitives.GroupIndex) ([]primitives.ValidatorIndex, bool)

// Engine is the inclusion state machine. Calls must not overlap; the
// relay driver runs them in round order.
type Engine struct {
	store    store
	cfg      ConfigSource
	paras    Paras
	host     Host
	verifier signing.Verifier
	events   EventSink
	metrics  *Metrics
	log      *slog.Logger
}

// Option configures the Engine during creation.
type Option func(*Engine)

// WithEventSink sets where events are emitted. Events are dropped by default.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) {
		e.events = sink
	}
}

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithVerifier replaces the signature verifier.
func WithVerifier(v signing.Verifier) Option {
	return func(e *Engine) {
		e.verifier = v
	}
}

// New creates an engine over db.
func New(db *storage.Storage, cfg ConfigSource, paras Paras, host Host, opts ...Option) *Engine {
	e := &Engine{
		store:    store{db: db},
		cfg:      cfg,
		paras:    paras,
		host:     host,
		verifier: signing.Crypto{},
		events:   discardSink{},
		log:      logger.Component("inclusion"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// signingContext returns the context validator signatures are checked under.
func (e *Engine) signingContext() (primitives.SigningContext, error) {
	session, err := e.store.sessionIndex()
	if err != nil {
		return primitives.SigningContext{}, err
	}

	return primitives.SigningContext{ParentHash: e.host.ParentHash(), SessionIndex: session}, nil
}

// refreshPendingGauge recounts pending candidates for the gauge.
func (e *Engine) refreshPendingGauge() {
	if e.metrics == nil {
		return
	}

	all, err := e.store.allPending()
	if err != nil {
		return
	}

	e.metrics.setPending(len(all))
}
