package devnet

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ShardRelay/internal/config"
	"ShardRelay/internal/inclusion"
	"ShardRelay/internal/primitives"
	"ShardRelay/internal/relay"
	"ShardRelay/internal/storage"
)

var twoChains = []config.ShardConfig{
	{ID: 100, Kind: "parachain", GenesisHead: "0100"},
	{ID: 200, Kind: "parachain", GenesisHead: "0200"},
}

func startChain(t *testing.T, db *storage.Storage, host config.HostConfiguration, net *Network, sessionLength primitives.Round, shards []config.ShardConfig) *relay.Chain {
	t.Helper()

	c, err := relay.Open(db, config.NewManager(host), net, sessionLength, relay.WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)

	if !c.Started() {
		require.NoError(t, c.Genesis(shards))
	}

	return c
}

func memDB(t *testing.T) *storage.Storage {
	t.Helper()

	db, err := storage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func kinds(events []inclusion.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = fmt.Sprintf("%s/%d", e.Kind, e.Receipt.Descriptor.ShardID)
	}
	return out
}

func TestCandidatesAreBackedThenIncluded(t *testing.T) {
	net, err := New("devnet-test", 5)
	require.NoError(t, err)

	c := startChain(t, memDB(t), config.Default(), net, 100, twoChains)

	res, err := c.ExecuteRound(net)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Round)
	assert.Equal(t, []primitives.CoreIndex{0, 1}, res.Occupied)
	assert.Equal(t, []string{"CandidateBacked/100", "CandidateBacked/200"}, kinds(res.Events))

	res, err = c.ExecuteRound(net)
	require.NoError(t, err)
	assert.Equal(t, []primitives.CoreIndex{0, 1}, res.Available)
	assert.Equal(t, []primitives.CoreIndex{0, 1}, res.Occupied)
	assert.Equal(t, []string{
		"CandidateIncluded/100", "CandidateIncluded/200",
		"CandidateBacked/100", "CandidateBacked/200",
	}, kinds(res.Events))

	head, ok, err := c.Paras().Head(100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Events[0].HeadData, head)

	// every validator attested in round 2
	for v := range 5 {
		rec, ok, err := c.Engine().AttestationRecord(primitives.ValidatorIndex(v))
		require.NoError(t, err)
		require.True(t, ok)
		assert.EqualValues(t, 2, rec.SubmittedAt)
	}
}

func TestParentHashChainsRounds(t *testing.T) {
	net, err := New("devnet-test", 4)
	require.NoError(t, err)

	c := startChain(t, memDB(t), config.Default(), net, 100, twoChains)

	prev := c.ParentHash()
	for range 3 {
		res, err := c.ExecuteRound(net)
		require.NoError(t, err)
		assert.NotEqual(t, prev, res.Hash)
		assert.Equal(t, res.Hash, c.ParentHash())
		prev = res.Hash
	}
}

func TestUnavailableCandidatesTimeOut(t *testing.T) {
	// with two of five validators offline, availability never reaches 4
	net, err := New("devnet-test", 5, WithOffline(0, 1))
	require.NoError(t, err)

	host := config.Default()
	host.ChainAvailabilityPeriod = 3
	host.GroupRotationFrequency = 0

	c := startChain(t, memDB(t), host, net, 100, twoChains)

	// group 0 is {0,1,2}: one online member cannot back; group 1 is {3,4}
	res, err := c.ExecuteRound(net)
	require.NoError(t, err)
	assert.Equal(t, []string{"CandidateBacked/200"}, kinds(res.Events))

	for range 2 {
		res, err = c.ExecuteRound(net)
		require.NoError(t, err)
		assert.Empty(t, res.Events)
	}

	res, err = c.ExecuteRound(net)
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Round)
	assert.Equal(t, []primitives.CoreIndex{1}, res.TimedOut)
	assert.Equal(t, []string{"CandidateTimedOut/200", "CandidateBacked/200"}, kinds(res.Events))

	head, _, err := c.Paras().Head(200)
	require.NoError(t, err)
	assert.Equal(t, primitives.HeadData{0x02, 0x00}, head)
}

func TestCodeUpgradeTakesEffect(t *testing.T) {
	net, err := New("devnet-test", 5, WithUpgradeEvery(3))
	require.NoError(t, err)

	host := config.Default()
	host.ValidationUpgradeDelay = 5
	host.ValidationUpgradeFrequency = 10

	c := startChain(t, memDB(t), host, net, 100, twoChains[:1])

	var shipped primitives.ValidationCode
	for round := 1; round <= 7; round++ {
		res, err := c.ExecuteRound(net)
		require.NoError(t, err)

		if round == 4 {
			// candidate backed in round 3 on relay parent 2 is included now
			up, ok := c.Paras().FutureUpgrade(100)
			require.True(t, ok)
			assert.EqualValues(t, 7, up.At)
			shipped = up.Code
		}

		if round == 7 {
			assert.Equal(t, []primitives.ShardID{100}, res.Upgraded)
		} else {
			assert.Empty(t, res.Upgraded, "round %d", round)
		}
	}

	code, ok := c.Paras().Code(100)
	require.True(t, ok)
	assert.Equal(t, shipped, code)

	last, ok := c.Paras().LastCodeUpgrade(100, false)
	require.True(t, ok)
	assert.EqualValues(t, 7, last)
}

func TestSessionRotationClearsPending(t *testing.T) {
	net, err := New("devnet-test", 5)
	require.NoError(t, err)

	c := startChain(t, memDB(t), config.Default(), net, 2, twoChains)

	_, err = c.ExecuteRound(net)
	require.NoError(t, err)

	res, err := c.ExecuteRound(net)
	require.NoError(t, err)
	assert.True(t, res.NewSession)

	session, err := c.SessionIndex()
	require.NoError(t, err)
	assert.EqualValues(t, 1, session)

	pending, err := c.Engine().AllPending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	// first round of the new session only backs
	res, err = c.ExecuteRound(net)
	require.NoError(t, err)
	assert.Equal(t, []string{"CandidateBacked/100", "CandidateBacked/200"}, kinds(res.Events))
}

func TestChainResumesAfterReopen(t *testing.T) {
	dir := t.TempDir()

	net, err := New("devnet-test", 5)
	require.NoError(t, err)

	db, err := storage.New(dir)
	require.NoError(t, err)

	c := startChain(t, db, config.Default(), net, 100, twoChains)
	for range 3 {
		_, err := c.ExecuteRound(net)
		require.NoError(t, err)
	}
	parent := c.ParentHash()
	require.NoError(t, db.Close())

	db, err = storage.New(dir)
	require.NoError(t, err)
	defer db.Close()

	c = startChain(t, db, config.Default(), net, 100, twoChains)
	assert.EqualValues(t, 4, c.Round())
	assert.Equal(t, parent, c.ParentHash())

	res, err := c.ExecuteRound(net)
	require.NoError(t, err)
	assert.Equal(t, []primitives.CoreIndex{0, 1}, res.Available)
	assert.Equal(t, []primitives.CoreIndex{0, 1}, res.Occupied)
}

func TestGenesisTwiceFails(t *testing.T) {
	net, err := New("devnet-test", 3)
	require.NoError(t, err)

	c := startChain(t, memDB(t), config.Default(), net, 10, twoChains)
	require.Error(t, c.Genesis(twoChains))
}

func TestEventLogGolden(t *testing.T) {
	net, err := New("golden", 5, WithOffline(4))
	require.NoError(t, err)

	host := config.Default()
	host.ParathreadCores = 1

	shards := append([]config.ShardConfig{}, twoChains...)
	shards = append(shards, config.ShardConfig{ID: 300, Kind: "parathread"})

	c := startChain(t, memDB(t), host, net, 6, shards)

	var buf bytes.Buffer
	for range 8 {
		res, err := c.ExecuteRound(net)
		require.NoError(t, err)

		for _, e := range res.Events {
			fmt.Fprintf(&buf, "round=%d %s shard=%d\n", res.Round, e.Kind, e.Receipt.Descriptor.ShardID)
		}

		if res.NewSession {
			fmt.Fprintf(&buf, "round=%d new session\n", res.Round)
		}
	}

	g := goldie.New(t)
	g.Assert(t, "event_log", buf.Bytes())
}
