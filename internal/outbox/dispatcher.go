package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/pkg/repository"
	"github.com/recruitflow/api/pkg/webhook"
)

// ErrTargetNotConfigured is returned when dispatch is requested but no
// webhook target URL is set.
var ErrTargetNotConfigured = errors.New("webhook target not configured")

// claimLease is how long a claimed item stays invisible to other dispatch
// cycles. A delivery that crashes without marking the item becomes due
// again once the lease expires.
const claimLease = time.Minute

// DispatchResult summarizes one dispatch pass.
type DispatchResult struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
}

// Dispatcher delivers due outbox items to the configured webhook target.
type Dispatcher struct {
	repo      repository.OutboxRepo
	client    *http.Client
	targetURL string
	secret    string
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatcher(repo repository.OutboxRepo, targetURL, secret string, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		repo:      repo,
		client:    &http.Client{Timeout: timeout},
		targetURL: targetURL,
		secret:    secret,
		batchSize: 20,
		logger:    logger,
		now:       time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (d *Dispatcher) SetNow(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// DispatchDue sends every due pending item once. A failed delivery marks the
// item for retry and does not stop the batch.
func (d *Dispatcher) DispatchDue(ctx context.Context) (*DispatchResult, error) {
	if d.targetURL == "" {
		return nil, ErrTargetNotConfigured
	}

	now := d.now().UTC()
	due, err := d.repo.ListDue(ctx, now, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list due: %w", err)
	}

	result := &DispatchResult{Due: len(due)}
	for i := range due {
		item := &due[i]
		// Claim the item before touching the network so overlapping cycles
		// cannot deliver the same event twice.
		claimed, err := d.repo.ClaimDue(ctx, item.ID, item.Attempts, now, now.Add(claimLease))
		if err != nil {
			d.logger.Error("outbox claim failed", "id", item.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		if err := d.deliver(ctx, item); err != nil {
			result.Retried++
			if markErr := d.repo.MarkRetry(ctx, item.ID, TruncateError(err.Error()), d.now().UTC()); markErr != nil {
				d.logger.Error("outbox mark retry failed", "id", item.ID, "error", markErr)
			}
			d.logger.Warn("outbox delivery failed", "id", item.ID, "event_type", item.EventType, "attempt", item.Attempts+1, "error", err)
			continue
		}
		result.Sent++
		if markErr := d.repo.MarkSent(ctx, item.ID, d.now().UTC()); markErr != nil {
			d.logger.Error("outbox mark sent failed", "id", item.ID, "error", markErr)
		}
	}
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, item *models.OutboxItem) error {
	envelope := webhook.Envelope{
		EventID:    item.ID,
		EventType:  item.EventType,
		OccurredAt: item.Created.UTC().Format(time.RFC3339),
		Data:       item.Payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.targetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.HeaderEventID, item.ID)
	req.Header.Set(webhook.HeaderSignature, webhook.Sign(d.secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http_%d", resp.StatusCode)
	}
	return nil
}
