package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/chat-memory/internal/model"
)

func newTestJournal(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("create journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j, path
}

func cycle(id, site, outcome string, started time.Time) model.Cycle {
	return model.Cycle{
		ID:         id,
		Site:       site,
		Source:     "enter",
		Outcome:    outcome,
		Raw:        "I love Python",
		Composed:   "I love Python\n\n...",
		Memories:   1,
		StartedAt:  started,
		FinishedAt: started.Add(200 * time.Millisecond),
	}
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)
	now := time.Now()

	if err := j.RecordCycle(ctx, cycle("c1", "chatgpt", model.OutcomeSent, now)); err != nil {
		t.Fatalf("record: %v", err)
	}
	ops := []model.OperationRecord{
		{Event: "ADD", Memory: "Loves Python", ID: "m1"},
		{Event: "bogus", Memory: "?", ID: "m2"},
	}
	if err := j.RecordOperations(ctx, "c1", ops, nil); err != nil {
		t.Fatalf("record ops: %v", err)
	}

	got, err := j.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Raw != "I love Python" || got.Site != "chatgpt" || got.Memories != 1 {
		t.Errorf("unexpected cycle %+v", got.Cycle)
	}
	if got.StartedAt.Sub(now).Abs() > time.Millisecond {
		t.Errorf("started_at not preserved: %v vs %v", got.StartedAt, now)
	}
	if len(got.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(got.Operations))
	}
	if got.Operations[0].Event != "ADD" || got.Operations[0].MemoryID != "m1" {
		t.Errorf("unexpected first op %+v", got.Operations[0])
	}
	if got.Operations[1].Event != "NONE" {
		t.Errorf("expected unknown event normalized to NONE, got %q", got.Operations[1].Event)
	}
}

func TestRecordOperations_Error(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)
	j.RecordCycle(ctx, cycle("c1", "claude", model.OutcomeSent, time.Now()))

	if err := j.RecordOperations(ctx, "c1", nil, errors.New("status 500")); err != nil {
		t.Fatalf("record ops: %v", err)
	}
	// A later success appends after the failure.
	j.RecordOperations(ctx, "c1", []model.OperationRecord{{Event: "UPDATE", ID: "m9"}}, nil)

	got, _ := j.Get(ctx, "c1")
	if len(got.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(got.Operations))
	}
	if got.Operations[0].Event != "ERROR" || got.Operations[0].Error != "status 500" {
		t.Errorf("unexpected error op %+v", got.Operations[0])
	}
	if got.Operations[1].Event != "UPDATE" {
		t.Errorf("unexpected second op %+v", got.Operations[1])
	}
}

func TestGet_NotFound(t *testing.T) {
	j, _ := newTestJournal(t)
	_, err := j.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordCycle_RequiresID(t *testing.T) {
	j, _ := newTestJournal(t)
	if err := j.RecordCycle(context.Background(), model.Cycle{Site: "x"}); err == nil {
		t.Error("expected error for cycle without id")
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)
	base := time.Now().Add(-time.Hour)

	j.RecordCycle(ctx, cycle("c1", "chatgpt", model.OutcomeSent, base))
	j.RecordCycle(ctx, cycle("c2", "claude", model.OutcomeSendFailed, base.Add(time.Minute)))
	j.RecordCycle(ctx, cycle("c3", "chatgpt", model.OutcomeEmpty, base.Add(2*time.Minute)))

	all, err := j.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c3" {
		t.Fatalf("expected newest first, got %d entries starting %v", len(all), all)
	}

	bySite, _ := j.List(ctx, ListParams{Site: "chatgpt"})
	if len(bySite) != 2 {
		t.Errorf("expected 2 chatgpt cycles, got %d", len(bySite))
	}

	failed, _ := j.List(ctx, ListParams{Outcome: model.OutcomeSendFailed})
	if len(failed) != 1 || failed[0].ID != "c2" {
		t.Errorf("expected c2 only, got %v", failed)
	}

	limited, _ := j.List(ctx, ListParams{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)

	j.RecordCycle(ctx, cycle("old", "chatgpt", model.OutcomeSent, time.Now().Add(-48*time.Hour)))
	j.RecordOperations(ctx, "old", []model.OperationRecord{{Event: "ADD", ID: "m"}}, nil)
	j.RecordCycle(ctx, cycle("new", "chatgpt", model.OutcomeSent, time.Now()))

	n, err := j.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if _, err := j.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old cycle gone, got %v", err)
	}
	if _, err := j.Get(ctx, "new"); err != nil {
		t.Errorf("expected new cycle kept, got %v", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	j, path := newTestJournal(t)

	j.RecordCycle(ctx, cycle("c1", "chatgpt", model.OutcomeSent, time.Now()))
	j.RecordCycle(ctx, cycle("c2", "chatgpt", model.OutcomeSendFailed, time.Now()))
	j.RecordOperations(ctx, "c1", []model.OperationRecord{{Event: "ADD"}, {Event: "ADD"}, {Event: "DELETE"}}, nil)

	st, err := j.Stats(ctx, path)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalCycles != 2 {
		t.Errorf("expected 2 cycles, got %d", st.TotalCycles)
	}
	if st.Operations["ADD"] != 2 || st.Operations["DELETE"] != 1 {
		t.Errorf("unexpected operation counts %v", st.Operations)
	}
	if len(st.Sites) != 1 || st.Sites[0].Sent != 1 || st.Sites[0].Failed != 1 || st.Sites[0].Memories != 2 {
		t.Errorf("unexpected site stats %+v", st.Sites)
	}
	if st.DBPath != path {
		t.Errorf("expected db path %q, got %q", path, st.DBPath)
	}
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"7d", 7 * 24 * time.Hour, true},
		{"24h", 24 * time.Hour, true},
		{"30m", 30 * time.Minute, true},
		{"60s", time.Minute, true},
		{"", 0, false},
		{"5w", 0, false},
		{"h", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseAge(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseAge(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAge(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
