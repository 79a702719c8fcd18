package audit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/crypto"
	"github.com/openuhs/go-sentinel/entities"
)

var testGens = crypto.Generators(24)

func blindOf(b byte) entities.Hash {
	var blind entities.Hash
	blind[31] = b
	return blind
}

func makeElement(t *testing.T, value uint64, blind byte, prov byte, creation uint64, deletion *uint64) (entities.Hash, entities.UhsElement) {
	t.Helper()
	com, err := crypto.Commit(value, blindOf(blind))
	require.NoError(t, err)
	proof, err := crypto.Prove(testGens, crypto.SpendData{Blind: blindOf(blind), Value: value}, com)
	require.NoError(t, err)

	var provenance entities.Hash
	provenance[0] = prov
	out := entities.CompactOutput{
		ValueCommitment: com,
		Range:           proof,
		Provenance:      provenance,
	}
	return entities.CalculateUhsID(out), entities.UhsElement{
		Out:           out,
		CreationEpoch: creation,
		DeletionEpoch: deletion,
	}
}

func newTestEngine() *Engine {
	return NewEngine(testGens, zap.NewNop().Sugar())
}

func TestSnapshotMap_Basics(t *testing.T) {
	m := NewSnapshotMap()
	id, elem := makeElement(t, 10, 0, 1, 0, nil)

	m.Put(id, elem)
	got, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, elem, got)
	assert.Equal(t, 1, m.Len())

	m.Delete(id)
	_, ok = m.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestSnapshotMap_Isolation(t *testing.T) {
	m := NewSnapshotMap()
	idA, elemA := makeElement(t, 10, 1, 1, 0, nil)
	idB, elemB := makeElement(t, 20, 2, 2, 0, nil)

	m.Put(idA, elemA)
	snap := m.Snapshot()
	defer snap.Release()

	m.Put(idB, elemB)
	m.Delete(idA)

	// The snapshot keeps its point-in-time view while the map moves on.
	assert.Equal(t, 1, snap.Len())
	var seen []entities.Hash
	snap.Ascend(func(id entities.Hash, _ entities.UhsElement) bool {
		seen = append(seen, id)
		return true
	})
	assert.Equal(t, []entities.Hash{idA}, seen)

	assert.Equal(t, 1, m.Len())
	_, ok := m.Get(idB)
	assert.True(t, ok)
}

func TestAudit_Conservation(t *testing.T) {
	engine := newTestEngine()

	idA, elemA := makeElement(t, 10, 0, 1, 0, nil)
	idB, elemB := makeElement(t, 20, 2, 2, 0, nil)
	idC, elemC := makeElement(t, 30, 3, 3, 0, nil)

	// All elements live in the UHS.
	uhs, locked, spent := NewSnapshotMap(), NewSnapshotMap(), NewSnapshotMap()
	uhs.Put(idA, elemA)
	uhs.Put(idB, elemB)
	uhs.Put(idC, elemC)
	allInUhs, err := engine.Audit(uhs, locked, spent, 0)
	require.NoError(t, err)

	// The same elements spread across the three sets.
	uhs, locked, spent = NewSnapshotMap(), NewSnapshotMap(), NewSnapshotMap()
	uhs.Put(idA, elemA)
	locked.Put(idB, elemB)
	spent.Put(idC, elemC)
	partitioned, err := engine.Audit(uhs, locked, spent, 0)
	require.NoError(t, err)

	// The audit sum is invariant under how the elements are partitioned,
	// and equals the commitment to the total value under the summed blinds.
	assert.Equal(t, allInUhs, partitioned)
	expected, err := crypto.Commit(60, blindOf(5))
	require.NoError(t, err)
	assert.Equal(t, expected, allInUhs)
}

func TestAudit_EpochFilter(t *testing.T) {
	engine := newTestEngine()
	uhs, locked, spent := NewSnapshotMap(), NewSnapshotMap(), NewSnapshotMap()

	deletion := uint64(5)
	idA, elemA := makeElement(t, 10, 1, 1, 0, &deletion)
	idB, elemB := makeElement(t, 20, 2, 2, 3, nil)
	uhs.Put(idA, elemA)
	uhs.Put(idB, elemB)

	// Epoch 0: only A exists; B is created later.
	sum, err := engine.Audit(uhs, locked, spent, 0)
	require.NoError(t, err)
	assert.Equal(t, elemA.Out.ValueCommitment, sum)

	// Epoch 4: both alive.
	sum, err = engine.Audit(uhs, locked, spent, 4)
	require.NoError(t, err)
	expected, err := crypto.SumCommitments(elemA.Out.ValueCommitment, elemB.Out.ValueCommitment)
	require.NoError(t, err)
	assert.Equal(t, expected, sum)

	// Epoch 5: A is deleted by now, only B remains.
	sum, err = engine.Audit(uhs, locked, spent, 5)
	require.NoError(t, err)
	assert.Equal(t, elemB.Out.ValueCommitment, sum)
}

func TestAudit_RejectsIDMismatch(t *testing.T) {
	engine := newTestEngine()
	uhs, locked, spent := NewSnapshotMap(), NewSnapshotMap(), NewSnapshotMap()

	_, elem := makeElement(t, 10, 1, 1, 0, nil)
	var wrongID entities.Hash
	wrongID[0] = 0xde
	uhs.Put(wrongID, elem)

	_, err := engine.Audit(uhs, locked, spent, 0)
	assert.ErrorIs(t, err, ErrAuditFailed)
}

func TestAudit_RejectsBadRangeProof(t *testing.T) {
	engine := newTestEngine()
	uhs, locked, spent := NewSnapshotMap(), NewSnapshotMap(), NewSnapshotMap()

	_, elem := makeElement(t, 10, 1, 1, 0, nil)
	elem.Out.Range = append(entities.RangeProof{}, elem.Out.Range...)
	elem.Out.Range[0] ^= 0x01
	uhs.Put(entities.CalculateUhsID(elem.Out), elem)

	_, err := engine.Audit(uhs, locked, spent, 0)
	assert.ErrorIs(t, err, ErrAuditFailed)
}

func TestAudit_EmptyScope(t *testing.T) {
	engine := newTestEngine()
	_, err := engine.Audit(NewSnapshotMap(), NewSnapshotMap(), NewSnapshotMap(), 0)
	assert.Error(t, err)
}

func TestAudit_ConcurrentWriters(t *testing.T) {
	engine := newTestEngine()
	uhs, locked, spent := NewSnapshotMap(), NewSnapshotMap(), NewSnapshotMap()

	id, elem := makeElement(t, 10, 1, 1, 0, nil)
	uhs.Put(id, elem)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := byte(2); i < 50; i++ {
			id, elem := makeElement(t, uint64(i), i, i, 0, nil)
			uhs.Put(id, elem)
		}
	}()

	// Audits run against consistent snapshots while the writer mutates.
	for i := 0; i < 20; i++ {
		_, err := engine.Audit(uhs, locked, spent, 0)
		require.NoError(t, err)
	}
	wg.Wait()
}
