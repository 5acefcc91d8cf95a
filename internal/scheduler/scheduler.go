// Package scheduler assigns shards to availability cores and validator
// groups to cores for each relay round.
//
// Core layout: cores [0, P) belong to the P registered parachains in
// ascending shard order; cores [P, P+T) are the T shared parathread cores
// that registered parathreads claim round-robin. Validators are split into
// one group per core, and groups rotate across cores every
// GroupRotationFrequency rounds.
package scheduler

import (
	"sync"

	"ShardRelay/internal/config"
	"ShardRelay/internal/paras"
	"ShardRelay/internal/primitives"
)

// ShardSource lists registered shards.
type ShardSource interface {
	Parachains() []primitives.ShardID
	Parathreads() []primitives.ShardID
	Registration(id primitives.ShardID) (paras.Registration, bool)
}

// ConfigSource provides the active host configuration.
type ConfigSource interface {
	Config() config.HostConfiguration
}

// core is the state of one availability core.
type core struct {
	shard    primitives.ShardID        // shard is the claimed or occupying shard
	kind     primitives.AssignmentKind // kind of the core
	claimed  bool                      // claimed is true once a shard is bound to the core
	occupied bool                      // occupied is true while a candidate is pending availability
}

// Scheduler tracks cores, groups and parathread claims.
type Scheduler struct {
	shards ShardSource
	cfg    ConfigSource

	mu           sync.Mutex
	cores        []core                        // cores indexed by CoreIndex
	groups       [][]primitives.ValidatorIndex // groups indexed by GroupIndex
	sessionStart primitives.Round              // sessionStart is the first round of the session
	nextThread   int                           // nextThread is the round-robin cursor over parathreads
}

// New creates a scheduler with no cores; call NewSession before scheduling.
func New(shards ShardSource, cfg ConfigSource) *Scheduler {
	return &Scheduler{shards: shards, cfg: cfg}
}

// NewSession rebuilds the cores and groups for a session of n validators
// starting at round start. Occupancy does not survive: the inclusion
// engine clears every pending candidate at the same boundary.
func (s *Scheduler) NewSession(validators int, start primitives.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chains := s.shards.Parachains()
	threadCores := int(s.cfg.Config().ParathreadCores)

	s.cores = make([]core, len(chains)+threadCores)
	for i, id := range chains {
		s.cores[i] = core{shard: id, kind: primitives.AssignmentParachain, claimed: true}
	}
	for i := len(chains); i < len(s.cores); i++ {
		s.cores[i] = core{kind: primitives.AssignmentParathread}
	}

	s.groups = splitGroups(validators, len(s.cores))
	s.sessionStart = start
}

// splitGroups divides validators [0, n) into min(n, cores) contiguous
// groups whose sizes differ by at most one, larger groups first.
func splitGroups(n, cores int) [][]primitives.ValidatorIndex {
	count := min(n, cores)
	if count == 0 {
		return nil
	}

	base, extra := n/count, n%count
	groups := make([][]primitives.ValidatorIndex, count)

	next := 0
	for g := range groups {
		size := base
		if g < extra {
			size++
		}

		groups[g] = make([]primitives.ValidatorIndex, size)
		for j := range size {
			groups[g][j] = primitives.ValidatorIndex(next)
			next++
		}
	}

	return groups
}

// NumCores returns the number of availability cores this session.
func (s *Scheduler) NumCores() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.cores)
}

// CoreShard returns the shard bound to core, if any. For parachain cores
// this is fixed for the session; parathread cores report their current claim.
func (s *Scheduler) CoreShard(c primitives.CoreIndex) (primitives.ShardID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(c) >= len(s.cores) || !s.cores[c].claimed {
		return 0, false
	}

	return s.cores[c].shard, true
}

// GroupValidators returns the members of a backing group.
func (s *Scheduler) GroupValidators(g primitives.GroupIndex) ([]primitives.ValidatorIndex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(g) >= len(s.groups) {
		return nil, false
	}

	return s.groups[g], true
}

// GroupForCore returns the group responsible for core at round now.
func (s *Scheduler) GroupForCore(c primitives.CoreIndex, now primitives.Round) (primitives.GroupIndex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.groupForCore(c, now)
}

func (s *Scheduler) groupForCore(c primitives.CoreIndex, now primitives.Round) (primitives.GroupIndex, bool) {
	if len(s.groups) == 0 || int(c) >= len(s.cores) {
		return 0, false
	}

	var rotations uint64
	if freq := s.cfg.Config().GroupRotationFrequency; freq > 0 {
		rotations = uint64(now.SaturatingSub(s.sessionStart) / freq)
	}

	return primitives.GroupIndex((uint64(c) + rotations) % uint64(len(s.groups))), true
}

// Schedule returns assignments for every free core in ascending core
// order. Free parathread cores claim the next parathreads round-robin,
// skipping parathreads that already hold a core.
func (s *Scheduler) Schedule(now primitives.Round) []primitives.CoreAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.claimParathreads()

	var out []primitives.CoreAssignment
	for i := range s.cores {
		c := &s.cores[i]
		if c.occupied || !c.claimed {
			continue
		}

		group, ok := s.groupForCore(primitives.CoreIndex(i), now)
		if !ok {
			continue
		}

		a := primitives.CoreAssignment{
			Core:    primitives.CoreIndex(i),
			ShardID: c.shard,
			Kind:    c.kind,
			Group:   group,
		}

		if reg, ok := s.shards.Registration(c.shard); ok && reg.RequiredCollator != nil {
			id := *reg.RequiredCollator
			a.RequiredCollator = &id
		}

		out = append(out, a)
	}

	return out
}

// claimParathreads binds free parathread cores to waiting parathreads.
// A claim that was not used for a candidate lasts a single round.
func (s *Scheduler) claimParathreads() {
	for i := range s.cores {
		if c := &s.cores[i]; c.kind == primitives.AssignmentParathread && !c.occupied {
			c.claimed = false
		}
	}

	threads := s.shards.Parathreads()
	if len(threads) == 0 {
		return
	}

	holding := make(map[primitives.ShardID]bool)
	for _, c := range s.cores {
		if c.kind == primitives.AssignmentParathread && c.claimed {
			holding[c.shard] = true
		}
	}

	for i := range s.cores {
		c := &s.cores[i]
		if c.kind != primitives.AssignmentParathread || c.claimed {
			continue
		}

		for tries := 0; tries < len(threads); tries++ {
			id := threads[s.nextThread%len(threads)]
			s.nextThread = (s.nextThread + 1) % len(threads)

			if !holding[id] {
				c.shard, c.claimed = id, true
				holding[id] = true
				break
			}
		}
	}
}

// Occupied marks cores as holding a pending candidate.
func (s *Scheduler) Occupied(cores []primitives.CoreIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cores {
		if int(c) < len(s.cores) {
			s.cores[c].occupied = true
		}
	}
}

// SyncOccupancy makes the occupied cores exactly those in pending, which
// maps each core holding a pending candidate to its shard. The driver
// calls it on restart and after each availability pass.
func (s *Scheduler) SyncOccupancy(pending map[primitives.CoreIndex]primitives.ShardID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cores {
		c := &s.cores[i]

		id, ok := pending[primitives.CoreIndex(i)]
		if !ok {
			c.occupied = false
			continue
		}

		c.shard, c.claimed, c.occupied = id, true, true
	}
}

// FreeCores releases cores whose candidate was enacted or timed out.
// Parathread cores also drop their claim so another parathread can take them.
func (s *Scheduler) FreeCores(cores []primitives.CoreIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cores {
		if int(c) >= len(s.cores) {
			continue
		}

		s.cores[c].occupied = false
		if s.cores[c].kind == primitives.AssignmentParathread {
			s.cores[c].claimed = false
		}
	}
}

// AvailabilityTimeoutPredicate returns the predicate the timeout sweep
// uses at round now. A core times out once now - backedIn reaches its
// kind's availability period; a zero period never times out.
func (s *Scheduler) AvailabilityTimeoutPredicate(now primitives.Round) func(primitives.CoreIndex, primitives.Round) bool {
	cfg := s.cfg.Config()

	s.mu.Lock()
	kinds := make([]primitives.AssignmentKind, len(s.cores))
	for i, c := range s.cores {
		kinds[i] = c.kind
	}
	s.mu.Unlock()

	return func(c primitives.CoreIndex, backedIn primitives.Round) bool {
		if int(c) >= len(kinds) {
			return false
		}

		period := cfg.ChainAvailabilityPeriod
		if kinds[c] == primitives.AssignmentParathread {
			period = cfg.ThreadAvailabilityPeriod
		}

		return period > 0 && now.SaturatingSub(backedIn) >= period
	}
}
