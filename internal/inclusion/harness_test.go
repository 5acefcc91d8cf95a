package inclusion

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ShardRelay/internal/bitfield"
	"ShardRelay/internal/config"
	"ShardRelay/internal/primitives"
	"ShardRelay/internal/signing"
	"ShardRelay/internal/storage"
)

// testHost is a fixed relay context.
type testHost struct {
	parent primitives.Hash
	round  primitives.Round
}

func (h *testHost) ParentHash() primitives.Hash { return h.parent }
func (h *testHost) Round() primitives.Round     { return h.round }

type scheduledUpgrade struct {
	shard primitives.ShardID
	code  primitives.ValidationCode
	at    primitives.Round
}

// fakeParas is an in-memory shard-state manager.
type fakeParas struct {
	chains      []primitives.ShardID
	heads       map[primitives.ShardID]primitives.HeadData
	headRounds  map[primitives.ShardID]primitives.Round
	lastUpgrade map[primitives.ShardID]primitives.Round
	upgrades    []scheduledUpgrade
	readErr     error // readErr fails every validation data read when set
}

func newFakeParas(chains ...primitives.ShardID) *fakeParas {
	p := &fakeParas{
		chains:      chains,
		heads:       make(map[primitives.ShardID]primitives.HeadData),
		headRounds:  make(map[primitives.ShardID]primitives.Round),
		lastUpgrade: make(map[primitives.ShardID]primitives.Round),
	}

	for _, id := range chains {
		p.heads[id] = primitives.HeadData{byte(id)}
	}

	return p
}

func (p *fakeParas) Parachains() []primitives.ShardID { return p.chains }

func (p *fakeParas) PersistedValidationData(id primitives.ShardID, rp primitives.Round) (primitives.PersistedValidationData, bool, error) {
	if p.readErr != nil {
		return primitives.PersistedValidationData{}, false, p.readErr
	}

	head, ok := p.heads[id]
	if !ok {
		return primitives.PersistedValidationData{}, false, nil
	}

	return primitives.PersistedValidationData{ParentHead: head, RelayParentNumber: rp, MaxPoVSize: 1024}, true, nil
}

func (p *fakeParas) LastCodeUpgrade(id primitives.ShardID, _ bool) (primitives.Round, bool) {
	r, ok := p.lastUpgrade[id]
	return r, ok
}

func (p *fakeParas) ScheduleCodeUpgrade(id primitives.ShardID, code primitives.ValidationCode, at primitives.Round) error {
	p.upgrades = append(p.upgrades, scheduledUpgrade{shard: id, code: code, at: at})
	p.lastUpgrade[id] = at
	return nil
}

func (p *fakeParas) NoteNewHead(id primitives.ShardID, head primitives.HeadData, round primitives.Round) error {
	p.heads[id] = head
	p.headRounds[id] = round
	return nil
}

const testSession primitives.SessionIndex = 5

// harness wires an engine to fakes and a set of validator keys.
type harness struct {
	t      *testing.T
	db     *storage.Storage
	engine *Engine
	host   *testHost
	paras  *fakeParas
	cfg    *config.Manager
	keys   []*signing.ValidatorKey
	events *EventLog
}

func newHarness(t *testing.T, validators int, threadCores uint32, chains ...primitives.ShardID) *harness {
	t.Helper()

	db, err := storage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hostCfg := config.Default()
	hostCfg.ParathreadCores = threadCores
	hostCfg.ValidationUpgradeFrequency = 3
	hostCfg.ValidationUpgradeDelay = 5

	h := &harness{
		t:      t,
		db:     db,
		host:   &testHost{parent: primitives.Hash{0xAB}, round: 10},
		paras:  newFakeParas(chains...),
		cfg:    config.NewManager(hostCfg),
		events: &EventLog{},
	}

	ids := make([]primitives.ValidatorID, validators)
	for i := range validators {
		k, err := signing.DevValidatorKey("inclusion-test", i)
		require.NoError(t, err)
		h.keys = append(h.keys, k)
		ids[i] = k.ID()
	}

	h.engine = New(db, h.cfg, h.paras, h.host, WithEventSink(h.events))
	require.NoError(t, h.engine.OnNewSession(SessionChangeNotification{Validators: ids, SessionIndex: testSession}))

	return h
}

func (h *harness) ctx() primitives.SigningContext {
	return primitives.SigningContext{ParentHash: h.host.parent, SessionIndex: testSession}
}

func (h *harness) nCores() int {
	return len(h.paras.chains) + int(h.cfg.Config().ParathreadCores)
}

// chainLookup maps core i to the i-th parachain.
func (h *harness) chainLookup(core primitives.CoreIndex) (primitives.ShardID, bool) {
	if int(core) < len(h.paras.chains) {
		return h.paras.chains[core], true
	}
	return 0, false
}

func (h *harness) signBitfield(v int, cores ...int) primitives.SignedAvailabilityBitfield {
	bits := bitfield.FromIndices(h.nCores(), cores...)

	return primitives.SignedAvailabilityBitfield{
		Payload:        bits,
		ValidatorIndex: primitives.ValidatorIndex(v),
		Signature:      h.keys[v].Sign(primitives.BitfieldPayload(bits, h.ctx())),
	}
}

// seedPending writes a pending candidate directly, optionally with commitments.
func (h *harness) seedPending(id primitives.ShardID, core primitives.CoreIndex, backedIn primitives.Round, commitments *primitives.CandidateCommitments) PendingCandidate {
	h.t.Helper()

	p := PendingCandidate{
		Core:              core,
		Descriptor:        primitives.CandidateDescriptor{ShardID: id, RelayParent: h.host.parent},
		AvailabilityVotes: bitfield.New(len(h.keys)),
		RelayParentNumber: backedIn.SaturatingSub(1),
		BackedInNumber:    backedIn,
	}

	require.NoError(h.t, h.db.Set(shardKey(pendingPrefix, id), encodePending(p)))

	if commitments != nil {
		require.NoError(h.t, h.db.Set(shardKey(commitmentsPrefix, id), encodeCommitments(*commitments)))
	}

	return p
}

func (h *harness) pending(id primitives.ShardID) (PendingCandidate, bool) {
	h.t.Helper()

	p, ok, err := h.engine.PendingAvailability(id)
	require.NoError(h.t, err)

	return p, ok
}

func (h *harness) hasCommitments(id primitives.ShardID) bool {
	h.t.Helper()

	ok, err := h.db.Has(shardKey(commitmentsPrefix, id))
	require.NoError(h.t, err)

	return ok
}

// candidate builds a collator-signed candidate for the shard on the current parent.
func (h *harness) candidate(id primitives.ShardID, head primitives.HeadData) primitives.CommittedCandidateReceipt {
	pvd, ok, _ := h.paras.PersistedValidationData(id, h.host.round-1)
	if !ok {
		pvd = primitives.PersistedValidationData{}
	}

	r := primitives.CommittedCandidateReceipt{
		Descriptor: primitives.CandidateDescriptor{
			ShardID:                     id,
			RelayParent:                 h.host.parent,
			PersistedValidationDataHash: pvd.Hash(),
			PoVHash:                     primitives.Hash{byte(id), 0x50},
		},
		Commitments: primitives.CandidateCommitments{HeadData: head},
	}

	signing.DevCollatorKey("inclusion-test", id).SignDescriptor(&r.Descriptor)

	return r
}

// resign refreshes the collator signature after a test edits the descriptor.
func (h *harness) resign(r *primitives.CommittedCandidateReceipt) {
	signing.DevCollatorKey("inclusion-test", r.Descriptor.ShardID).SignDescriptor(&r.Descriptor)
}

// back collects votes from the group members at the given positions.
func (h *harness) back(r primitives.CommittedCandidateReceipt, group []primitives.ValidatorIndex, positions ...int) primitives.BackedCandidate {
	hash := r.Hash()

	bc := primitives.BackedCandidate{
		Candidate:        r,
		ValidatorIndices: bitfield.FromIndices(len(group), positions...),
	}

	for i, pos := range bc.ValidatorIndices.Ones() {
		kind := primitives.AttestationExplicit
		if i == 0 {
			kind = primitives.AttestationImplicit
		}

		key := h.keys[group[pos]]
		bc.ValidityVotes = append(bc.ValidityVotes, primitives.ValidityAttestation{
			Kind:      kind,
			Signature: key.Sign(primitives.StatementPayload(kind, hash, h.ctx())),
		})
	}

	return bc
}

// groupsOf returns a GroupLookup over fixed groups.
func groupsOf(groups ...[]primitives.ValidatorIndex) GroupLookup {
	return func(g primitives.GroupIndex) ([]primitives.ValidatorIndex, bool) {
		if int(g) >= len(groups) {
			return nil, false
		}
		return groups[g], true
	}
}
