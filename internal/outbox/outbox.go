package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/pkg/repository"
)

// MaxAttempts is the delivery cap; reaching it parks the item as failed.
const MaxAttempts = 10

const maxErrorLen = 2000

// retrySchedule is indexed by attempt number (1-based); later attempts stay
// clamped at the last entry.
var retrySchedule = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	1800 * time.Second,
	7200 * time.Second,
}

// RetryDelay returns the backoff before the given attempt is retried.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(retrySchedule) {
		attempt = len(retrySchedule)
	}
	return retrySchedule[attempt-1]
}

// TruncateError bounds stored dispatch errors so a chatty endpoint cannot
// bloat the outbox table.
func TruncateError(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}

// Service enqueues domain events for at-least-once delivery.
type Service struct {
	repo   repository.OutboxRepo
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo repository.OutboxRepo, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// SetNow overrides the clock, for tests.
func (s *Service) SetNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Enqueue stores one pending delivery, idempotently: a second call with the
// same dedupe key returns the already stored item.
func (s *Service) Enqueue(ctx context.Context, eventType string, payload map[string]any, dedupeKey string) (*models.OutboxItem, error) {
	now := s.now().UTC()
	item := &models.OutboxItem{
		ID:            uuid.NewString(),
		EventType:     eventType,
		Payload:       payload,
		Status:        models.OutboxPending,
		NextAttemptAt: now,
		DedupeKey:     dedupeKey,
		Created:       now,
		Updated:       now,
	}

	stored, err := s.repo.Enqueue(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	if stored.ID != item.ID {
		s.logger.Info("outbox enqueue deduplicated", "dedupe_key", dedupeKey, "id", stored.ID)
	}
	return stored, nil
}

// EnqueueApplicationSubmitted records the submission event for an
// application. The dedupe key makes concurrent duplicate submissions
// collapse into a single delivery.
func (s *Service) EnqueueApplicationSubmitted(ctx context.Context, applicationID string) (*models.OutboxItem, error) {
	dedupeKey := fmt.Sprintf("%s:%s", models.EventApplicationSubmitted, applicationID)
	payload := map[string]any{"application_id": applicationID}
	return s.Enqueue(ctx, models.EventApplicationSubmitted, payload, dedupeKey)
}

// ListPending returns pending items oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]models.OutboxItem, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListPending(ctx, limit)
}

// ListDue returns pending items whose next attempt is due, soonest first.
func (s *Service) ListDue(ctx context.Context, limit int) ([]models.OutboxItem, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListDue(ctx, s.now().UTC(), limit)
}
