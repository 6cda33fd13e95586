package mirror

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"modeldash/internal/reconcile"
	"modeldash/pkg/types"
)

type rec struct {
	k string
	v string
}

func (r rec) Key() string      { return r.k }
func (r rec) Equal(o rec) bool { return r == o }

type deltaLog struct {
	mu     sync.Mutex
	deltas []reconcile.Delta[rec]
}

func (l *deltaLog) record(_ types.CollectionID, d reconcile.Delta[rec]) {
	l.mu.Lock()
	l.deltas = append(l.deltas, d)
	l.mu.Unlock()
}

func (l *deltaLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.deltas)
}

func newMirror(t *testing.T, seed ...rec) (*Mirror[rec], *deltaLog) {
	t.Helper()
	l := &deltaLog{}
	m := New[rec](types.CollectionInstalled, l.record, zerolog.Nop())
	if _, err := m.Sync(m.BeginFetch(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return m, l
}

func keys(m *Mirror[rec]) []string {
	return m.Snapshot().Keys()
}

func TestSync_AppliesAndEmits(t *testing.T) {
	m, l := newMirror(t, rec{"A", "1"}, rec{"B", "1"})
	d, err := m.Sync(m.BeginFetch(), []rec{{"A", "1"}, {"C", "1"}})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !slices.Equal(d.Removed, []string{"B"}) || len(d.Added) != 1 || d.Added[0].k != "C" {
		t.Fatalf("delta=%+v", d)
	}
	if got := keys(m); !slices.Equal(got, []string{"A", "C"}) {
		t.Fatalf("keys=%v", got)
	}
	if l.count() != 2 {
		t.Fatalf("emitted %d deltas, want 2", l.count())
	}
	// unchanged snapshot emits nothing
	if _, err := m.Sync(m.BeginFetch(), []rec{{"A", "1"}, {"C", "1"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if l.count() != 2 {
		t.Fatalf("empty delta was emitted")
	}
}

func TestBegin_SecondMutationFailsFast(t *testing.T) {
	m, _ := newMirror(t, rec{"A", "1"})
	if err := m.Begin("A", "m1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	err := m.Begin("A", "m2")
	if !IsInProgress(err) {
		t.Fatalf("expected in-progress error, got %v", err)
	}
	// other keys are independent
	if err := m.Begin("B", "m3"); err != nil {
		t.Fatalf("begin other key: %v", err)
	}
	if got := m.Pending(); !slices.Equal(got, []string{"A", "B"}) {
		t.Fatalf("pending=%v", got)
	}
}

func TestDeleteRace_StalePollCompletesWhilePending(t *testing.T) {
	m, _ := newMirror(t, rec{"A", "1"}, rec{"B", "1"})
	tok := m.BeginFetch() // poll starts, backend still has A
	if err := m.Begin("A", "del"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// poll observes A with a new payload while the delete is in flight
	if _, err := m.Sync(tok, []rec{{"A", "2"}, {"B", "1"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if a, _ := m.Get("A"); a.v != "1" {
		t.Fatalf("pending key was updated by poll: %v", a)
	}
	m.Settle("A", "del", true, false)
	if got := keys(m); !slices.Equal(got, []string{"B"}) {
		t.Fatalf("keys=%v, A should be gone", got)
	}
}

func TestDeleteRace_StalePollCompletesAfterSettle(t *testing.T) {
	m, _ := newMirror(t, rec{"A", "1"}, rec{"B", "1"})
	if err := m.Begin("A", "del"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	tok := m.BeginFetch() // poll started before the delete settled
	d := m.Settle("A", "del", true, false)
	if !slices.Equal(d.Removed, []string{"A"}) {
		t.Fatalf("eager delta=%+v", d)
	}
	// stale snapshot still lists A; it must not resurrect it
	if _, err := m.Sync(tok, []rec{{"A", "1"}, {"B", "1"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if m.Snapshot().Has("A") {
		t.Fatalf("A resurrected by stale poll")
	}
	// fence is released once no older fetch is in flight: a fresh poll is authoritative
	if _, err := m.Sync(m.BeginFetch(), []rec{{"A", "1"}, {"B", "1"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !m.Snapshot().Has("A") {
		t.Fatalf("fresh poll should be applied after fences are released")
	}
}

func TestDeleteFailure_FlushesQueuedChange(t *testing.T) {
	m, _ := newMirror(t, rec{"A", "1"}, rec{"B", "1"})
	if err := m.Begin("A", "del"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Sync(m.BeginFetch(), []rec{{"A", "2"}, {"B", "1"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	d := m.Settle("A", "del", false, false)
	if len(d.Changed) != 1 || d.Changed[0] != (rec{"A", "2"}) {
		t.Fatalf("queued change not flushed: %+v", d)
	}
	if a, _ := m.Get("A"); a.v != "2" {
		t.Fatalf("A=%v", a)
	}
}

func TestDeleteFailure_NoQueuedChangeLeavesCollection(t *testing.T) {
	m, _ := newMirror(t, rec{"A", "1"})
	before := m.Snapshot()
	if err := m.Begin("A", "del"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if d := m.Settle("A", "del", false, false); !d.Empty() {
		t.Fatalf("delta=%+v", d)
	}
	if !m.Snapshot().Equal(before) {
		t.Fatalf("collection changed on failed mutation")
	}
}

func TestDeleteFailure_LatestPollAgreeingWithCollectionWins(t *testing.T) {
	m, _ := newMirror(t, rec{"A", "1"})
	if err := m.Begin("A", "del"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Sync(m.BeginFetch(), []rec{{"A", "2"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	// newer poll is back to what the collection holds
	if _, err := m.Sync(m.BeginFetch(), []rec{{"A", "1"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if d := m.Settle("A", "del", false, false); !d.Empty() {
		t.Fatalf("delta=%+v", d)
	}
	if a, _ := m.Get("A"); a.v != "1" {
		t.Fatalf("A=%v, latest snapshot had A=1", a)
	}
}

func TestDeleteFailure_LatestPollPresenceWinsOverQueuedRemoval(t *testing.T) {
	m, _ := newMirror(t, rec{"A", "1"})
	if err := m.Begin("A", "del"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Sync(m.BeginFetch(), nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := m.Sync(m.BeginFetch(), []rec{{"A", "1"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	m.Settle("A", "del", false, false)
	if !m.Snapshot().Has("A") {
		t.Fatalf("A removed although the latest snapshot contains it")
	}
}

func TestPullSuccess_AppliesQueuedPresence(t *testing.T) {
	m, _ := newMirror(t, rec{"A", "1"})
	if err := m.Begin("C", "pull"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Sync(m.BeginFetch(), []rec{{"A", "1"}, {"C", "1"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if m.Snapshot().Has("C") {
		t.Fatalf("pending key applied before settle")
	}
	d := m.Settle("C", "pull", true, true)
	if len(d.Added) != 1 || d.Added[0].k != "C" {
		t.Fatalf("delta=%+v", d)
	}
}

func TestPullSuccess_DropsContradictingQueuedRemoval(t *testing.T) {
	m, _ := newMirror(t, rec{"C", "old"})
	if err := m.Begin("C", "pull"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Sync(m.BeginFetch(), nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if d := m.Settle("C", "pull", true, true); !d.Empty() {
		t.Fatalf("delta=%+v", d)
	}
	if !m.Snapshot().Has("C") {
		t.Fatalf("C removed by contradicting queued change")
	}
}

func TestSettle_WrongMutationIDIsNoop(t *testing.T) {
	m, _ := newMirror(t, rec{"A", "1"})
	if err := m.Begin("A", "m1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	m.Settle("A", "other", true, false)
	if !m.IsPending("A") || !m.Snapshot().Has("A") {
		t.Fatalf("foreign settle affected mutation")
	}
}

func TestSync_DuplicateKeyLeavesCollectionAndReleasesToken(t *testing.T) {
	m, l := newMirror(t, rec{"m0", "1"})
	before := m.Snapshot()
	emitted := l.count()
	_, err := m.Sync(m.BeginFetch(), []rec{{"m1", "1"}, {"m1", "2"}})
	if !reconcile.IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if !m.Snapshot().Equal(before) || l.count() != emitted {
		t.Fatalf("collection or view touched on duplicate key")
	}
	m.mu.Lock()
	n := len(m.inflight)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("token leaked: %d in flight", n)
	}
}

func TestConcurrentSyncAndMutations(t *testing.T) {
	m, _ := newMirror(t)
	snap := make([]rec, 0, 50)
	for i := 0; i < 50; i++ {
		snap = append(snap, rec{fmt.Sprintf("k%02d", i), "1"})
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := m.Sync(m.BeginFetch(), snap); err != nil {
					t.Errorf("sync: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("x%d", i)
			id := fmt.Sprintf("m%d", i)
			if err := m.Begin(key, id); err != nil {
				t.Errorf("begin: %v", err)
				return
			}
			m.Settle(key, id, true, false)
		}(i)
	}
	wg.Wait()
	if m.Len() != 50 {
		t.Fatalf("len=%d want 50", m.Len())
	}
	if len(m.Pending()) != 0 {
		t.Fatalf("pending=%v", m.Pending())
	}
}
