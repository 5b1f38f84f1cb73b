package outbox_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/internal/outbox"
)

// fakeRepo records calls in memory; dedupe happens on DedupeKey like the
// real store. Guarded by a mutex so overlapping dispatch cycles can share it.
type fakeRepo struct {
	mu       sync.Mutex
	items    map[string]*models.OutboxItem // by dedupe key
	retried  []string
	sent     []string
	lastErrs []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: map[string]*models.OutboxItem{}}
}

func (f *fakeRepo) Enqueue(_ context.Context, item *models.OutboxItem) (*models.OutboxItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.items[item.DedupeKey]; ok {
		return existing, nil
	}
	cp := *item
	f.items[item.DedupeKey] = &cp
	return &cp, nil
}

func (f *fakeRepo) ListPending(_ context.Context, limit int) ([]models.OutboxItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.OutboxItem{}
	for _, item := range f.items {
		if item.Status == models.OutboxPending && len(out) < limit {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListDue(_ context.Context, now time.Time, limit int) ([]models.OutboxItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.OutboxItem{}
	for _, item := range f.items {
		if item.Status == models.OutboxPending && !item.NextAttemptAt.After(now) && len(out) < limit {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeRepo) ClaimDue(_ context.Context, id string, attempts int, now, leaseUntil time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == id && item.Status == models.OutboxPending && item.Attempts == attempts && !item.NextAttemptAt.After(now) {
			item.NextAttemptAt = leaseUntil
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) MarkSent(_ context.Context, id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	for _, item := range f.items {
		if item.ID == id {
			item.Status = models.OutboxSent
			item.LastError = ""
		}
	}
	return nil
}

func (f *fakeRepo) MarkRetry(_ context.Context, id, errorMessage string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, id)
	f.lastErrs = append(f.lastErrs, errorMessage)
	for _, item := range f.items {
		if item.ID == id {
			item.Attempts++
			item.LastError = errorMessage
			if item.Attempts >= outbox.MaxAttempts {
				item.Status = models.OutboxFailed
			} else {
				item.NextAttemptAt = now.Add(outbox.RetryDelay(item.Attempts))
			}
		}
	}
	return nil
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 60 * time.Second},
		{1, 60 * time.Second},
		{2, 300 * time.Second},
		{3, 1800 * time.Second},
		{4, 7200 * time.Second},
		{5, 7200 * time.Second},
		{100, 7200 * time.Second},
	}
	for _, tc := range tests {
		if got := outbox.RetryDelay(tc.attempt); got != tc.want {
			t.Fatalf("RetryDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestTruncateError(t *testing.T) {
	short := "connection refused"
	if got := outbox.TruncateError(short); got != short {
		t.Fatalf("short message changed: %q", got)
	}

	long := strings.Repeat("x", 5000)
	got := outbox.TruncateError(long)
	if len(got) != 2000 {
		t.Fatalf("expected 2000 chars got %d", len(got))
	}
}

func TestEnqueueApplicationSubmittedDedupes(t *testing.T) {
	repo := newFakeRepo()
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.EnqueueApplicationSubmitted(ctx, "app-1")
	if err != nil {
		t.Fatalf("EnqueueApplicationSubmitted error: %v", err)
	}
	if first.DedupeKey != "application_submitted:app-1" {
		t.Fatalf("unexpected dedupe key %q", first.DedupeKey)
	}
	if first.EventType != models.EventApplicationSubmitted {
		t.Fatalf("unexpected event type %q", first.EventType)
	}
	if got := first.Payload["application_id"]; got != "app-1" {
		t.Fatalf("unexpected payload: %#v", first.Payload)
	}

	second, err := svc.EnqueueApplicationSubmitted(ctx, "app-1")
	if err != nil {
		t.Fatalf("EnqueueApplicationSubmitted error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected dedupe to return the stored item, got new id %q", second.ID)
	}

	other, err := svc.EnqueueApplicationSubmitted(ctx, "app-2")
	if err != nil {
		t.Fatalf("EnqueueApplicationSubmitted error: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("distinct applications must not collapse")
	}

	pending, err := svc.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending items got %d", len(pending))
	}
}
