package overlay

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/db"
)

func testStore(t *testing.T) (*Store, *audit.Ledger) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	ledger := audit.NewLedger(d)
	return NewStore(d, ledger), ledger
}

func changeCount(t *testing.T, l *audit.Ledger, userID string) int {
	t.Helper()
	changes, err := l.Query(context.Background(), userID, audit.Filter{Limit: audit.MaxLimit})
	if err != nil {
		t.Fatalf("query changes: %v", err)
	}
	return len(changes)
}

func TestGetAbsent(t *testing.T) {
	s, _ := testStore(t)

	_, err := s.Get(context.Background(), "alice", "prop_001")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCloseFloors(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	res, err := s.CloseFloors(ctx, "alice", "prop_001", []int{4, 3}, "")
	if err != nil {
		t.Fatalf("close floors: %v", err)
	}
	if !slices.Equal(res.ClosedFloors, []int{3, 4}) {
		t.Errorf("closed floors = %v, want [3 4]", res.ClosedFloors)
	}
	if !res.Changed || res.ChangeID == "" {
		t.Errorf("result = %+v, want a recorded change", res)
	}

	st, err := s.Get(ctx, "alice", "prop_001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.HybridIntensity != DefaultHybridIntensity || st.TargetOccupancy != nil {
		t.Errorf("params = %v/%v, want defaults", st.HybridIntensity, st.TargetOccupancy)
	}
	if st.Version != 2 {
		t.Errorf("version = %d, want 2", st.Version)
	}

	changes, err := ledger.Query(ctx, "alice", audit.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	c := changes[0]
	if c.EntityID != "prop_001" || c.UserID != "alice" || c.Field != audit.FieldClosedFloors {
		t.Errorf("change = %+v", c)
	}
	if string(c.OldValue) != "[]" || string(c.NewValue) != "[3,4]" {
		t.Errorf("diff = %s -> %s", c.OldValue, c.NewValue)
	}
	if c.Metadata["requested"] != "3,4" {
		t.Errorf("metadata = %v", c.Metadata)
	}
}

func TestCloseFloorsIdempotent(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	if _, err := s.CloseFloors(ctx, "alice", "prop_001", []int{3}, ""); err != nil {
		t.Fatalf("first close: %v", err)
	}
	res, err := s.CloseFloors(ctx, "alice", "prop_001", []int{3}, "")
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !slices.Equal(res.ClosedFloors, []int{3}) {
		t.Errorf("closed floors = %v, want [3]", res.ClosedFloors)
	}
	if res.Changed {
		t.Error("second close should be a no-op")
	}
	if n := changeCount(t, ledger, "alice"); n != 1 {
		t.Errorf("got %d audit entries, want 1", n)
	}
}

func TestCloseFloorsDuplicatesInRequest(t *testing.T) {
	s, _ := testStore(t)

	res, err := s.CloseFloors(context.Background(), "alice", "p", []int{2, 2, 2}, "")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !slices.Equal(res.ClosedFloors, []int{2}) {
		t.Errorf("closed floors = %v, want [2]", res.ClosedFloors)
	}
}

func TestEmptyFloorsIsNoop(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	res, err := s.CloseFloors(ctx, "alice", "p", nil, "")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if res.Changed || len(res.ClosedFloors) != 0 {
		t.Errorf("result = %+v", res)
	}
	if _, err := s.Get(ctx, "alice", "p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty close created a record: %v", err)
	}
	if n := changeCount(t, ledger, "alice"); n != 0 {
		t.Errorf("got %d audit entries, want 0", n)
	}
}

func TestInvalidFloor(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	for _, floors := range [][]int{{0}, {3, -1}} {
		if _, err := s.CloseFloors(ctx, "alice", "p", floors, ""); !errors.Is(err, ErrInvalidFloor) {
			t.Errorf("close %v: err = %v, want ErrInvalidFloor", floors, err)
		}
	}
	if n := changeCount(t, ledger, "alice"); n != 0 {
		t.Errorf("got %d audit entries, want 0", n)
	}
}

func TestOpenFloorsRoundTrip(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	if _, err := s.CloseFloors(ctx, "alice", "prop_001", []int{3, 4}, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	res, err := s.OpenFloors(ctx, "alice", "prop_001", []int{3, 4}, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(res.ClosedFloors) != 0 || !res.Changed {
		t.Errorf("result = %+v", res)
	}

	if _, err := s.Get(ctx, "alice", "prop_001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record should be deleted, got err = %v", err)
	}
	if n := changeCount(t, ledger, "alice"); n != 2 {
		t.Errorf("got %d audit entries, want 2", n)
	}
}

func TestOpenFloorsPartial(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	if _, err := s.CloseFloors(ctx, "alice", "p", []int{1, 2, 3}, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	res, err := s.OpenFloors(ctx, "alice", "p", []int{2, 9}, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !slices.Equal(res.ClosedFloors, []int{1, 3}) {
		t.Errorf("closed floors = %v, want [1 3]", res.ClosedFloors)
	}
}

func TestOpenFloorsNotClosedIsNoop(t *testing.T) {
	s, ledger := testStore(t)

	res, err := s.OpenFloors(context.Background(), "alice", "p", []int{5}, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Changed {
		t.Error("opening an open floor should be a no-op")
	}
	if n := changeCount(t, ledger, "alice"); n != 0 {
		t.Errorf("got %d audit entries, want 0", n)
	}
}

func TestOpenKeepsRecordWithCustomParams(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	hybrid := 0.8

	if _, err := s.CloseFloors(ctx, "alice", "p", []int{2}, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.UpdateParams(ctx, "alice", "p", ParamsUpdate{HybridIntensity: &hybrid}, ""); err != nil {
		t.Fatalf("update params: %v", err)
	}
	before, err := s.Get(ctx, "alice", "p")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := s.OpenFloors(ctx, "alice", "p", []int{2}, ""); err != nil {
		t.Fatalf("open: %v", err)
	}

	st, err := s.Get(ctx, "alice", "p")
	if err != nil {
		t.Fatalf("record with custom params should survive: %v", err)
	}
	if len(st.ClosedFloors) != 0 || st.HybridIntensity != 0.8 {
		t.Errorf("state = %+v", st)
	}
	if st.Version != before.Version+1 {
		t.Errorf("version = %d, want %d", st.Version, before.Version+1)
	}
}

func TestSettleSurfacesErrors(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if err := s.settle(ctx, tx, "alice", "p", 0); err == nil {
		t.Error("settle on a finished transaction should fail")
	}
	if err := s.settle(ctx, tx, "alice", "p", 1); err == nil {
		t.Error("version bump on a finished transaction should fail")
	}
}

func TestIsolation(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	if _, err := s.CloseFloors(ctx, "alice", "prop_001", []int{5}, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Get(ctx, "bob", "prop_001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob sees alice's overlay: err = %v", err)
	}
	if _, err := s.OpenFloors(ctx, "bob", "prop_001", []int{5}, ""); err != nil {
		t.Fatalf("bob open: %v", err)
	}

	st, err := s.Get(ctx, "alice", "prop_001")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if !slices.Equal(st.ClosedFloors, []int{5}) {
		t.Errorf("alice floors = %v, want [5]", st.ClosedFloors)
	}
}

func TestReset(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	if _, err := s.CloseFloors(ctx, "alice", "p", []int{1, 2}, ""); err != nil {
		t.Fatalf("close: %v", err)
	}

	deleted, err := s.Reset(ctx, "alice", "p", "")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !deleted {
		t.Error("reset should report a deleted record")
	}
	if _, err := s.Get(ctx, "alice", "p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record survived reset: %v", err)
	}

	var floors int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM user_closed_floors WHERE user_id = 'alice'`).Scan(&floors); err != nil {
		t.Fatalf("count floors: %v", err)
	}
	if floors != 0 {
		t.Errorf("%d closed floor rows survived reset", floors)
	}

	again, err := s.Reset(ctx, "alice", "p", "")
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if again {
		t.Error("second reset should be a no-op")
	}

	changes, err := ledger.Query(ctx, "alice", audit.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	if changes[0].Field != audit.FieldState || string(changes[0].NewValue) != "null" {
		t.Errorf("reset entry = %+v", changes[0])
	}
}

func TestResetAll(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	for _, p := range []string{"p1", "p2", "p3"} {
		if _, err := s.CloseFloors(ctx, "alice", p, []int{1}, ""); err != nil {
			t.Fatalf("close %s: %v", p, err)
		}
	}
	if _, err := s.CloseFloors(ctx, "bob", "p1", []int{1}, ""); err != nil {
		t.Fatalf("close bob: %v", err)
	}

	n, err := s.ResetAll(ctx, "alice", "")
	if err != nil {
		t.Fatalf("reset all: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}

	states, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("alice has %d records after reset all", len(states))
	}
	bob, err := s.List(ctx, "bob")
	if err != nil {
		t.Fatalf("list bob: %v", err)
	}
	if len(bob) != 1 {
		t.Errorf("bob has %d records, want 1", len(bob))
	}

	if got := changeCount(t, ledger, "alice"); got != 6 {
		t.Errorf("got %d audit entries, want 6", got)
	}

	none, err := s.ResetAll(ctx, "alice", "")
	if err != nil {
		t.Fatalf("second reset all: %v", err)
	}
	if none != 0 {
		t.Errorf("deleted = %d, want 0", none)
	}
}

func TestList(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	if _, err := s.CloseFloors(ctx, "alice", "p2", []int{4, 1}, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.CloseFloors(ctx, "alice", "p1", []int{2}, ""); err != nil {
		t.Fatalf("close: %v", err)
	}

	states, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("got %d states, want 2", len(states))
	}
	if states[0].PropertyID != "p1" || !slices.Equal(states[0].ClosedFloors, []int{2}) {
		t.Errorf("first state = %+v", states[0])
	}
	if states[1].PropertyID != "p2" || !slices.Equal(states[1].ClosedFloors, []int{1, 4}) {
		t.Errorf("second state = %+v", states[1])
	}
}

func TestUpdateParams(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()
	hybrid, target := 0.7, 0.5

	st, err := s.UpdateParams(ctx, "alice", "p", ParamsUpdate{HybridIntensity: &hybrid, TargetOccupancy: &target}, "")
	if err != nil {
		t.Fatalf("update params: %v", err)
	}
	if st == nil || st.HybridIntensity != 0.7 || st.TargetOccupancy == nil || *st.TargetOccupancy != 0.5 {
		t.Fatalf("state = %+v", st)
	}

	changes, err := ledger.Query(ctx, "alice", audit.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	if changes[0].BatchID == "" || changes[0].BatchID != changes[1].BatchID {
		t.Errorf("batch ids = %q, %q", changes[0].BatchID, changes[1].BatchID)
	}

	same, err := s.UpdateParams(ctx, "alice", "p", ParamsUpdate{HybridIntensity: &hybrid}, "")
	if err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	if same.Version != st.Version {
		t.Errorf("no-op update bumped version %d -> %d", st.Version, same.Version)
	}

	def := DefaultHybridIntensity
	cleared, err := s.UpdateParams(ctx, "alice", "p", ParamsUpdate{HybridIntensity: &def, ClearTarget: true}, "")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared != nil {
		t.Errorf("defaults without floors should delete the record, got %+v", cleared)
	}
	if got := changeCount(t, ledger, "alice"); got != 4 {
		t.Errorf("got %d audit entries, want 4", got)
	}
}

func TestSaveSimulation(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	if err := s.SaveSimulation(ctx, "alice", "p", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("save on absent record: %v", err)
	}
	if _, err := s.Get(ctx, "alice", "p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("saving a simulation created a record: %v", err)
	}

	if _, err := s.CloseFloors(ctx, "alice", "p", []int{1}, ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.SaveSimulation(ctx, "alice", "p", []byte(`{"x":2}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	st, err := s.Get(ctx, "alice", "p")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(st.LastSimulation) != `{"x":2}` {
		t.Errorf("last simulation = %s", st.LastSimulation)
	}
	if got := changeCount(t, ledger, "alice"); got != 1 {
		t.Errorf("got %d audit entries, want 1", got)
	}
}

func TestSessionAttribution(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	sess, err := ledger.CreateSession(ctx, "alice", "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := s.CloseFloors(ctx, "alice", "p", []int{1}, sess.SessionID); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ledger.GetSession(ctx, "alice", sess.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ChangesCount != 1 {
		t.Errorf("changes count = %d, want 1", got.ChangesCount)
	}
}

func TestConcurrentCloseSameKey(t *testing.T) {
	s, ledger := testStore(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(floor int) {
			defer wg.Done()
			if _, err := s.CloseFloors(ctx, "alice", "p", []int{floor}, ""); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent close: %v", err)
	}

	st, err := s.Get(ctx, "alice", "p")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !slices.Equal(st.ClosedFloors, []int{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("closed floors = %v, want all eight", st.ClosedFloors)
	}
	if got := changeCount(t, ledger, "alice"); got != workers {
		t.Errorf("got %d audit entries, want %d", got, workers)
	}
}

func TestExpiredContextTimesOut(t *testing.T) {
	s, _ := testStore(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := s.CloseFloors(ctx, "alice", "p", []int{1}, "")
	if !errors.Is(err, ErrStorageTimeout) {
		t.Errorf("err = %v, want ErrStorageTimeout", err)
	}
}
