package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eharain/Rutba-POS-sub002/internal/domain"
	"github.com/eharain/Rutba-POS-sub002/internal/pricing"
	"github.com/eharain/Rutba-POS-sub002/internal/sale"
)

func newTestOrder() *sale.Order {
	return sale.NewOrder(pricing.Policy{TaxRate: decimal.Zero})
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	m := NewManager()
	sess := m.Create("main-branch", "desk-1", "amir", newTestOrder())
	if sess.Version != 1 {
		t.Fatalf("initial version = %d, want 1", sess.Version)
	}

	updated, err := m.Update(sess.ID, 1, func(*Session) error { return nil })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}

	if _, err := m.Update(sess.ID, 1, func(*Session) error { return nil }); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale update err = %v, want ErrConflict", err)
	}
}

func TestUpdateKeepsVersionOnError(t *testing.T) {
	m := NewManager()
	sess := m.Create("main-branch", "desk-1", "amir", newTestOrder())

	boom := errors.New("boom")
	if _, err := m.Update(sess.ID, 1, func(*Session) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	got, err := m.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("version after failed update = %d, want 1", got.Version)
	}
}

func TestUpdateUnknownSession(t *testing.T) {
	m := NewManager()
	if _, err := m.Update("missing", 1, func(*Session) error { return nil }); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	m := NewManager()
	sess := m.Create("main-branch", "desk-1", "amir", newTestOrder())

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	conflicts := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every goroutine presents version 1; only one can win.
			_, err := m.Update(sess.ID, 1, func(*Session) error { return nil })
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("applied = %d, want exactly 1", applied)
	}
	if conflicts != attempts-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, attempts-1)
	}
}

func TestRemoveForgetsSession(t *testing.T) {
	m := NewManager()
	sess := m.Create("main-branch", "desk-1", "amir", newTestOrder())

	m.Remove(sess.ID)
	if _, err := m.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryParkedSaleStoreRoundTrip(t *testing.T) {
	store := NewMemoryParkedSaleStore()
	ctx := context.Background()

	parked := ParkedSale{
		ID:       "park-1",
		BranchID: "main-branch",
		DeskID:   "desk-1",
		Owner:    "amir",
		Note:     "customer fetching card",
		Draft:    domain.DraftSale{ID: "sale-1", InvoiceNumber: "INV-1"},
		ParkedAt: time.Now().UTC(),
	}
	if err := store.Put(ctx, parked); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := store.Get(ctx, "main-branch", "park-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Draft.InvoiceNumber != "INV-1" || got.Note != parked.Note {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	list, err := store.List(ctx, "main-branch")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list len = %d, want 1", len(list))
	}

	if err := store.Delete(ctx, "main-branch", "park-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "main-branch", "park-1"); ok {
		t.Fatal("expected parked sale gone after delete")
	}
}
