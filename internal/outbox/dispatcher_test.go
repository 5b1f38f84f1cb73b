package outbox_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/internal/outbox"
	"github.com/recruitflow/api/pkg/webhook"
)

func pendingItem(dedupeKey string, nextAttempt time.Time) *models.OutboxItem {
	return &models.OutboxItem{
		ID:            uuid.NewString(),
		EventType:     models.EventApplicationSubmitted,
		Payload:       map[string]any{"application_id": "app-1"},
		Status:        models.OutboxPending,
		NextAttemptAt: nextAttempt,
		DedupeKey:     dedupeKey,
		Created:       nextAttempt,
	}
}

func TestDispatchDueDeliversAndSigns(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	now := time.Now().UTC()

	item, err := repo.Enqueue(ctx, pendingItem("k1", now))
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	secret := "whsec_test"
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := outbox.NewDispatcher(repo, srv.URL, secret, time.Second, nil)
	result, err := d.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("DispatchDue error: %v", err)
	}
	if result.Due != 1 || result.Sent != 1 || result.Retried != 0 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(repo.sent) != 1 || repo.sent[0] != item.ID {
		t.Fatalf("expected item marked sent, got %v", repo.sent)
	}
	// attempts counts only retry-scheduled failures
	if got := repo.items["k1"].Attempts; got != 0 {
		t.Fatalf("successful delivery bumped attempts to %d", got)
	}

	if got := gotHeaders.Get(webhook.HeaderEventID); got != item.ID {
		t.Fatalf("event id header = %q, want %q", got, item.ID)
	}
	sig := gotHeaders.Get(webhook.HeaderSignature)
	if !webhook.Verify(secret, gotBody, sig) {
		t.Fatalf("signature does not verify over the delivered body")
	}

	var env webhook.Envelope
	if err := json.Unmarshal(gotBody, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventID != item.ID || env.EventType != models.EventApplicationSubmitted {
		t.Fatalf("unexpected envelope: %#v", env)
	}
	if _, err := time.Parse(time.RFC3339, env.OccurredAt); err != nil {
		t.Fatalf("occurred_at not RFC3339: %q", env.OccurredAt)
	}
}

func TestDispatchDueRetriesOnServerError(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	now := time.Now().UTC()

	if _, err := repo.Enqueue(ctx, pendingItem("k1", now)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := outbox.NewDispatcher(repo, srv.URL, "s", time.Second, nil)
	result, err := d.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("DispatchDue error: %v", err)
	}
	if result.Due != 1 || result.Sent != 0 || result.Retried != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(repo.lastErrs) != 1 || repo.lastErrs[0] != "http_500" {
		t.Fatalf("expected http_500 recorded, got %v", repo.lastErrs)
	}

	stored := repo.items["k1"]
	if stored.Attempts != 1 || stored.Status != models.OutboxPending {
		t.Fatalf("unexpected state after retry: %#v", stored)
	}
	wantNext := now.Add(60 * time.Second)
	if stored.NextAttemptAt.Before(wantNext) || stored.NextAttemptAt.After(wantNext.Add(5*time.Second)) {
		t.Fatalf("next attempt %v not ~60s after %v", stored.NextAttemptAt, now)
	}
}

func TestDispatchDueIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	now := time.Now().UTC()

	if _, err := repo.Enqueue(ctx, pendingItem("fail", now)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if _, err := repo.Enqueue(ctx, pendingItem("ok", now)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var env webhook.Envelope
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &env); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
		if env.EventID == repo.items["fail"].ID {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := outbox.NewDispatcher(repo, srv.URL, "s", time.Second, nil)
	result, err := d.DispatchDue(ctx)
	if err != nil {
		t.Fatalf("DispatchDue error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both items attempted, got %d calls", calls)
	}
	if result.Sent != 1 || result.Retried != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestDispatchDueOverlappingCyclesDeliverOnce(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	now := time.Now().UTC()

	if _, err := repo.Enqueue(ctx, pendingItem("k1", now)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var deliveries int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&deliveries, 1)
		// hold the request so both cycles overlap on the same item
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := outbox.NewDispatcher(repo, srv.URL, "s", time.Second, nil)
			if _, err := d.DispatchDue(ctx); err != nil {
				t.Errorf("DispatchDue error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&deliveries); got != 1 {
		t.Fatalf("one due item delivered %d times across overlapping cycles", got)
	}
	if len(repo.sent) != 1 {
		t.Fatalf("expected one sent mark, got %v", repo.sent)
	}
}

func TestDispatchDueWithoutTarget(t *testing.T) {
	d := outbox.NewDispatcher(newFakeRepo(), "", "s", time.Second, nil)
	if _, err := d.DispatchDue(context.Background()); err != outbox.ErrTargetNotConfigured {
		t.Fatalf("expected ErrTargetNotConfigured got %v", err)
	}
}
