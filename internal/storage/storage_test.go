package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/narration"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:narrate-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := Open(dsn, log.New(io.Discard))
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMarkAsListened(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, id := range []string{"a", "b"} {
		if err := db.Upsert(ctx, Entry{ID: id, Title: "Title " + id, Source: "feed"}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := db.MarkAsListened(ctx, "a"); err != nil {
		t.Fatalf("MarkAsListened: %v", err)
	}

	e, err := db.Entry(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if e.ListenedAt == nil {
		t.Error("a should be listened")
	}

	left, err := db.Unlistened(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].ID != "b" {
		t.Errorf("unlistened = %+v, want only b", left)
	}
}

func TestMarkAsListenedUnknownID(t *testing.T) {
	db := openTestDB(t)
	if err := db.MarkAsListened(context.Background(), "nope"); err != nil {
		t.Errorf("unknown id should be ignored, got %v", err)
	}
}

func TestUpsertKeepsListenedState(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Upsert(ctx, Entry{ID: "a", Title: "Old"}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkAsListened(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(ctx, Entry{ID: "a", Title: "New", Path: "/tmp/a.md"}); err != nil {
		t.Fatal(err)
	}

	e, err := db.Entry(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if e.Title != "New" || e.Path != "/tmp/a.md" {
		t.Errorf("entry = %+v", e)
	}
	if e.ListenedAt == nil {
		t.Error("re-adding an entry must not reset its listened state")
	}
}

func TestUpdateInterest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	updates := []narration.Article{
		{ID: "1", Source: "Daily"},
		{ID: "2", Source: "Weekly"},
		{ID: "3", Source: "Daily"},
		{ID: "4", Source: "  "},
	}
	for _, a := range updates {
		if err := db.UpdateInterest(ctx, a); err != nil {
			t.Fatalf("UpdateInterest: %v", err)
		}
	}

	got, err := db.Interests(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"Daily": 2, "Weekly": 1, unknownSource: 1}
	if len(got) != len(want) {
		t.Fatalf("interests = %+v", got)
	}
	if got[0].Source != "Daily" {
		t.Errorf("heaviest = %s, want Daily", got[0].Source)
	}
	for _, i := range got {
		if want[i.Source] != i.Weight {
			t.Errorf("%s weight = %v, want %v", i.Source, i.Weight, want[i.Source])
		}
	}
}

func TestUnlistenedOrdersByInterest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_ = db.Upsert(ctx, Entry{ID: "quiet", Title: "Q", Source: "Quiet"})
	_ = db.Upsert(ctx, Entry{ID: "loud", Title: "L", Source: "Loud"})
	_ = db.UpdateInterest(ctx, narration.Article{Source: "Loud"})

	got, err := db.Unlistened(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "loud" {
		t.Errorf("order = %+v, want loud first", got)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if _, ok, err := db.Get(ctx, "voice"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := db.Set(ctx, "voice", "alloy"); err != nil {
		t.Fatal(err)
	}
	if err := db.Set(ctx, "voice", "nova"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.Get(ctx, "voice")
	if err != nil || !ok || v != "nova" {
		t.Errorf("Get = %q %v %v", v, ok, err)
	}
	if err := db.Delete(ctx, "voice"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := db.Get(ctx, "voice"); ok {
		t.Error("key still present after Delete")
	}
	if err := db.Delete(ctx, "voice"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "library.db")
	db, err := Open(path, log.New(io.Discard))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close() //nolint:errcheck

	if err := db.Set(context.Background(), "k", "v"); err != nil {
		t.Errorf("Set: %v", err)
	}
}
