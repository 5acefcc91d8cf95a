// Package relay drives the relay chain round by round: it applies due
// code upgrades, sweeps timed-out candidates, folds availability
// bitfields, reschedules free cores, admits backed candidates and seals
// the round. Sessions rotate every SessionLength rounds.
package relay

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"ShardRelay/internal/config"
	"ShardRelay/internal/inclusion"
	"ShardRelay/internal/logger"
	"ShardRelay/internal/paras"
	"ShardRelay/internal/primitives"
	"ShardRelay/internal/scheduler"
	"ShardRelay/internal/storage"
)

// Key prefixes for chain state in pebble.
var (
	roundKey        = []byte("rr:") // round being built
	parentKey       = []byte("rh:") // hash of the last sealed round
	sessionStartKey = []byte("rs:") // first round of the current session
)

// Prefixes lists every key prefix owned by the chain driver.
func Prefixes() [][]byte {
	return [][]byte{roundKey, parentKey, sessionStartKey}
}

// StatePrefixes lists every prefix a snapshot must carry to restore the
// chain: driver, shard registry and inclusion state.
func StatePrefixes() [][]byte {
	var out [][]byte
	out = append(out, Prefixes()...)
	out = append(out, paras.Prefixes()...)
	out = append(out, inclusion.Prefixes()...)

	return out
}

// ValidatorSet provides the validator keys of each session.
type ValidatorSet interface {
	Validators(session primitives.SessionIndex) []primitives.ValidatorID
}

// Author supplies the inherent data of a round.
type Author interface {
	// Bitfields returns the signed availability bitfields for the round.
	Bitfields(c *Chain) []primitives.SignedAvailabilityBitfield

	// Candidates returns backed candidates for the scheduled cores.
	Candidates(c *Chain, scheduled []primitives.CoreAssignment) []primitives.BackedCandidate
}

// RoundResult summarizes one executed round.
type RoundResult struct {
	Round      primitives.Round       // Round is the executed round
	Hash       primitives.Hash        // Hash seals the round and is the next relay parent
	Upgraded   []primitives.ShardID   // Upgraded are shards whose new code took effect
	TimedOut   []primitives.CoreIndex // TimedOut are cores freed by the timeout sweep
	Available  []primitives.CoreIndex // Available are cores freed by enactment
	Occupied   []primitives.CoreIndex // Occupied are cores taken by new candidates
	Events     []inclusion.Event      // Events were emitted by the engine during the round
	NewSession bool                   // NewSession is true if a session starts next round
}

// Chain owns the relay state and the runtime modules.
type Chain struct {
	db         *storage.Storage
	cfg        *config.Manager
	paras      *paras.Registry
	sched      *scheduler.Scheduler
	engine     *inclusion.Engine
	validators ValidatorSet
	log        *slog.Logger

	events        *inclusion.EventLog // events collects engine output per round
	sink          inclusion.EventSink // sink receives every event after the round
	registry      prometheus.Registerer
	roundGauge    prometheus.Gauge
	sessionLength primitives.Round

	mu           sync.RWMutex // mu guards round, parent and sessionStart for readers outside the round loop
	round        primitives.Round
	parent       primitives.Hash
	sessionStart primitives.Round
}

// Option configures the Chain during creation.
type Option func(*Chain)

// WithEventSink forwards every engine event to sink after its round.
func WithEventSink(sink inclusion.EventSink) Option {
	return func(c *Chain) {
		c.sink = sink
	}
}

// WithRegistry registers chain and engine metrics with reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(c *Chain) {
		c.registry = reg
	}
}

// Open creates the chain over db. A fresh database starts at round 1 in
// session 0 once Genesis is called; an existing one resumes where it stopped.
func Open(db *storage.Storage, cfg *config.Manager, validators ValidatorSet, sessionLength primitives.Round, opts ...Option) (*Chain, error) {
	if sessionLength == 0 {
		return nil, fmt.Errorf("session length must be positive")
	}

	registry, err := paras.New(db, cfg)
	if err != nil {
		return nil, fmt.Errorf("open shard registry:\n%w", err)
	}

	c := &Chain{
		db:            db,
		cfg:           cfg,
		paras:         registry,
		sched:         scheduler.New(registry, cfg),
		validators:    validators,
		log:           logger.Component("relay"),
		events:        &inclusion.EventLog{},
		sessionLength: sessionLength,
	}

	for _, opt := range opts {
		opt(c)
	}

	engineOpts := []inclusion.Option{inclusion.WithEventSink(c.events)}
	if c.registry != nil {
		engineOpts = append(engineOpts, inclusion.WithMetrics(inclusion.NewMetrics(c.registry)))

		c.roundGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay", Name: "round",
			Help: "Round currently being built.",
		})
		c.registry.MustRegister(c.roundGauge)
	}

	c.engine = inclusion.New(db, cfg, registry, c, engineOpts...)

	if err := c.load(); err != nil {
		return nil, err
	}

	return c, nil
}

// load restores round, parent and session start and rebuilds the scheduler.
func (c *Chain) load() error {
	raw, err := c.db.Get(roundKey)
	if err != nil {
		return fmt.Errorf("read round:\n%w", err)
	}

	if raw == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.round = primitives.Round(binary.BigEndian.Uint64(raw))

	if raw, err = c.db.Get(parentKey); err != nil {
		return fmt.Errorf("read parent hash:\n%w", err)
	}
	copy(c.parent[:], raw)

	if raw, err = c.db.Get(sessionStartKey); err != nil {
		return fmt.Errorf("read session start:\n%w", err)
	}
	if len(raw) == 8 {
		c.sessionStart = primitives.Round(binary.BigEndian.Uint64(raw))
	}

	validators, err := c.engine.Validators()
	if err != nil {
		return err
	}

	c.sched.NewSession(len(validators), c.sessionStart)

	return c.restoreOccupancy()
}

// restoreOccupancy marks every core that holds a pending candidate.
func (c *Chain) restoreOccupancy() error {
	pending, err := c.engine.AllPending()
	if err != nil {
		return err
	}

	cores := make(map[primitives.CoreIndex]primitives.ShardID, len(pending))
	for _, p := range pending {
		cores[p.Core] = p.Descriptor.ShardID
	}

	c.sched.SyncOccupancy(cores)

	return nil
}

// Started reports whether Genesis has run on this database.
func (c *Chain) Started() bool {
	return c.Round() > 0
}

// Genesis registers the shards and starts session 0 at round 1.
func (c *Chain) Genesis(shards []config.ShardConfig) error {
	if c.Started() {
		return fmt.Errorf("chain already started at round %d", c.round)
	}

	for _, s := range shards {
		reg, head, code, err := genesisShard(s)
		if err != nil {
			return err
		}

		if err := c.paras.Register(s.ID, reg, head, code); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.round = 1
	c.parent = primitives.HashBytes([]byte("relay-genesis"))
	c.mu.Unlock()

	if err := c.startSession(0); err != nil {
		return err
	}

	return c.persist()
}

// startSession installs the validators of session and rebuilds cores at the current round.
func (c *Chain) startSession(session primitives.SessionIndex) error {
	prev, next := c.cfg.Rotate()
	validators := c.validators.Validators(session)

	err := c.engine.OnNewSession(inclusion.SessionChangeNotification{
		Validators:   validators,
		Queued:       c.validators.Validators(session + 1),
		PrevConfig:   prev,
		NewConfig:    next,
		RandomSeed:   primitives.HashBytes(c.parent[:], []byte("session-seed")),
		SessionIndex: session,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionStart = c.round
	c.mu.Unlock()

	c.sched.NewSession(len(validators), c.round)

	c.log.Info("session started", "session", session, "round", c.round, "validators", len(validators), "cores", c.sched.NumCores())

	return nil
}

// persist writes round, parent and session start in one batch.
func (c *Chain) persist() error {
	b := c.db.NewBatch()
	defer b.Close()

	if err := b.Set(roundKey, binary.BigEndian.AppendUint64(nil, uint64(c.round))); err != nil {
		return err
	}

	if err := b.Set(parentKey, c.parent[:]); err != nil {
		return err
	}

	if err := b.Set(sessionStartKey, binary.BigEndian.AppendUint64(nil, uint64(c.sessionStart))); err != nil {
		return err
	}

	if err := b.Commit(); err != nil {
		return fmt.Errorf("persist chain state:\n%w", err)
	}

	if c.roundGauge != nil {
		c.roundGauge.Set(float64(c.round))
	}

	return nil
}

// ParentHash returns the relay parent of the round being built.
func (c *Chain) ParentHash() primitives.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.parent
}

// Round returns the round being built.
func (c *Chain) Round() primitives.Round {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.round
}

// SessionIndex returns the current session.
func (c *Chain) SessionIndex() (primitives.SessionIndex, error) {
	return c.engine.SessionIndex()
}

// SigningContext returns the context validators sign under this round.
func (c *Chain) SigningContext() (primitives.SigningContext, error) {
	session, err := c.engine.SessionIndex()
	if err != nil {
		return primitives.SigningContext{}, err
	}

	return primitives.SigningContext{ParentHash: c.ParentHash(), SessionIndex: session}, nil
}

// Engine returns the inclusion engine.
func (c *Chain) Engine() *inclusion.Engine {
	return c.engine
}

// Paras returns the shard registry.
func (c *Chain) Paras() *paras.Registry {
	return c.paras
}

// Scheduler returns the core scheduler.
func (c *Chain) Scheduler() *scheduler.Scheduler {
	return c.sched
}

// Config returns the host configuration manager.
func (c *Chain) Config() *config.Manager {
	return c.cfg
}
