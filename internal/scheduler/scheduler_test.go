package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ShardRelay/internal/config"
	"ShardRelay/internal/paras"
	"ShardRelay/internal/primitives"
)

// fakeShards is an in-memory ShardSource.
type fakeShards struct {
	chains  []primitives.ShardID
	threads []primitives.ShardID
	regs    map[primitives.ShardID]paras.Registration
}

func (f *fakeShards) Parachains() []primitives.ShardID  { return f.chains }
func (f *fakeShards) Parathreads() []primitives.ShardID { return f.threads }

func (f *fakeShards) Registration(id primitives.ShardID) (paras.Registration, bool) {
	r, ok := f.regs[id]
	return r, ok
}

func newTestScheduler(chains, threads []primitives.ShardID, threadCores uint32, rotation primitives.Round) (*Scheduler, *fakeShards) {
	shards := &fakeShards{chains: chains, threads: threads, regs: map[primitives.ShardID]paras.Registration{}}

	cfg := config.Default()
	cfg.ParathreadCores = threadCores
	cfg.GroupRotationFrequency = rotation
	cfg.ChainAvailabilityPeriod = 5
	cfg.ThreadAvailabilityPeriod = 2

	return New(shards, config.NewManager(cfg)), shards
}

func cores(as []primitives.CoreAssignment) []primitives.CoreIndex {
	out := make([]primitives.CoreIndex, len(as))
	for i, a := range as {
		out[i] = a.Core
	}
	return out
}

func TestSplitGroups(t *testing.T) {
	groups := splitGroups(7, 3)
	require.Len(t, groups, 3)
	assert.Equal(t, []primitives.ValidatorIndex{0, 1, 2}, groups[0])
	assert.Equal(t, []primitives.ValidatorIndex{3, 4}, groups[1])
	assert.Equal(t, []primitives.ValidatorIndex{5, 6}, groups[2])

	assert.Len(t, splitGroups(2, 5), 2)
	assert.Nil(t, splitGroups(4, 0))
}

func TestParachainCoresAreScheduledInOrder(t *testing.T) {
	s, _ := newTestScheduler([]primitives.ShardID{10, 20, 30}, nil, 0, 0)
	s.NewSession(6, 0)

	as := s.Schedule(1)
	require.Len(t, as, 3)
	assert.Equal(t, []primitives.CoreIndex{0, 1, 2}, cores(as))
	assert.Equal(t, primitives.ShardID(20), as[1].ShardID)

	id, ok := s.CoreShard(2)
	require.True(t, ok)
	assert.Equal(t, primitives.ShardID(30), id)

	_, ok = s.CoreShard(3)
	assert.False(t, ok)
}

func TestOccupiedCoresAreSkippedUntilFreed(t *testing.T) {
	s, _ := newTestScheduler([]primitives.ShardID{1, 2}, nil, 0, 0)
	s.NewSession(4, 0)

	s.Occupied([]primitives.CoreIndex{0})
	assert.Equal(t, []primitives.CoreIndex{1}, cores(s.Schedule(1)))

	s.FreeCores([]primitives.CoreIndex{0})
	assert.Equal(t, []primitives.CoreIndex{0, 1}, cores(s.Schedule(2)))
}

func TestGroupRotation(t *testing.T) {
	s, _ := newTestScheduler([]primitives.ShardID{1, 2, 3}, nil, 0, 10)
	s.NewSession(3, 100)

	g, ok := s.GroupForCore(0, 105)
	require.True(t, ok)
	assert.EqualValues(t, 0, g)

	g, _ = s.GroupForCore(0, 110)
	assert.EqualValues(t, 1, g)

	g, _ = s.GroupForCore(2, 121)
	assert.EqualValues(t, 1, g)

	members, ok := s.GroupValidators(1)
	require.True(t, ok)
	assert.Equal(t, []primitives.ValidatorIndex{1}, members)

	_, ok = s.GroupValidators(3)
	assert.False(t, ok)
}

func TestParathreadsClaimRoundRobin(t *testing.T) {
	s, shards := newTestScheduler([]primitives.ShardID{1}, []primitives.ShardID{50, 60, 70}, 2, 0)
	collator := primitives.CollatorID{7}
	shards.regs[60] = paras.Registration{Kind: primitives.AssignmentParathread, RequiredCollator: &collator}
	s.NewSession(3, 0)

	as := s.Schedule(1)
	require.Len(t, as, 3)
	assert.Equal(t, primitives.ShardID(50), as[1].ShardID)
	assert.Equal(t, primitives.AssignmentParathread, as[1].Kind)
	assert.Equal(t, primitives.ShardID(60), as[2].ShardID)
	require.NotNil(t, as[2].RequiredCollator)
	assert.Equal(t, collator, *as[2].RequiredCollator)

	// core 1 is used; core 2's unused claim passes to the next parathread
	s.Occupied([]primitives.CoreIndex{1})
	as = s.Schedule(2)
	require.Len(t, as, 2)
	assert.Equal(t, primitives.CoreIndex(2), as[1].Core)
	assert.Equal(t, primitives.ShardID(70), as[1].ShardID)

	id, ok := s.CoreShard(1)
	require.True(t, ok)
	assert.Equal(t, primitives.ShardID(50), id)

	s.FreeCores([]primitives.CoreIndex{1})
	_, ok = s.CoreShard(1)
	assert.False(t, ok)
}

func TestSyncOccupancy(t *testing.T) {
	s, _ := newTestScheduler([]primitives.ShardID{1}, []primitives.ShardID{9}, 1, 0)
	s.NewSession(2, 0)

	s.SyncOccupancy(map[primitives.CoreIndex]primitives.ShardID{1: 9})

	id, ok := s.CoreShard(1)
	require.True(t, ok)
	assert.Equal(t, primitives.ShardID(9), id)
	assert.Equal(t, []primitives.CoreIndex{0}, cores(s.Schedule(1)))

	// core 0 was marked but holds nothing any more
	s.Occupied([]primitives.CoreIndex{0})
	s.SyncOccupancy(map[primitives.CoreIndex]primitives.ShardID{1: 9})
	assert.Equal(t, []primitives.CoreIndex{0}, cores(s.Schedule(2)))
}

func TestAvailabilityTimeoutPredicate(t *testing.T) {
	s, _ := newTestScheduler([]primitives.ShardID{1}, []primitives.ShardID{9}, 1, 0)
	s.NewSession(2, 0)

	pred := s.AvailabilityTimeoutPredicate(10)
	assert.False(t, pred(0, 6))
	assert.True(t, pred(0, 5))
	assert.False(t, pred(1, 9))
	assert.True(t, pred(1, 8))
	assert.False(t, pred(5, 0))
}

func TestZeroPeriodDisablesTimeout(t *testing.T) {
	shards := &fakeShards{chains: []primitives.ShardID{1}}
	cfg := config.Default()
	cfg.ChainAvailabilityPeriod = 0

	s := New(shards, config.NewManager(cfg))
	s.NewSession(1, 0)

	assert.False(t, s.AvailabilityTimeoutPredicate(1000)(0, 0))
}
