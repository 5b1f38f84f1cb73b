package repository

import (
	"context"
	"time"

	"github.com/recruitflow/api/internal/flow"
	"github.com/recruitflow/api/internal/models"
)

// Repository interfaces for the storage collaborator. These are the public
// contracts consumers should depend on; concrete implementations live under
// internal/. Lookups return (nil, nil) when the entity is absent or outside
// the requested tenant/job scope, never partial data.

type AuthRepo interface {
	// BootstrapTenantOwner creates the tenant and its owner user in a single
	// transaction. A duplicate tenant slug fails the whole call.
	BootstrapTenantOwner(ctx context.Context, tenant *models.Tenant, owner *models.User) error
	FindUserByCredentials(ctx context.Context, tenantSlug, email string) (*models.User, error)
}

type JobRepo interface {
	// CreateJobWithFlow inserts the job together with its version-1 flow and
	// points active_flow_version_id at it, all in one transaction, so a
	// failed flow insert cannot leave a flow-less job behind.
	CreateJobWithFlow(ctx context.Context, j *models.Job, fv *models.FlowVersion) error
	ListJobs(ctx context.Context, tenantID string) ([]models.Job, error)
	GetJob(ctx context.Context, tenantID, jobID string) (*models.Job, error)
	UpdateJob(ctx context.Context, j *models.Job) error
	FindPublicJob(ctx context.Context, tenantSlug, publicSlug string) (*models.Job, error)
	// PublishFlowVersion stores the immutable version and points the job's
	// active_flow_version_id at it, atomically.
	PublishFlowVersion(ctx context.Context, fv *models.FlowVersion) error
}

// JobFlow is a job joined with its active flow version.
type JobFlow struct {
	Job          models.Job
	VersionID    string
	Definition   flow.Definition
	ScoringRules flow.ScoringRules
}

// ApplicationContext is an application joined with its snapshotted flow
// version.
type ApplicationContext struct {
	App          models.Application
	Definition   flow.Definition
	ScoringRules flow.ScoringRules
}

// RescoreFunc recomputes the global score over the full answer set. The
// storage implementation invokes it inside the same transaction that
// replaces a node's answers, so answers and derived score cannot drift.
type RescoreFunc func(all []flow.SavedAnswer) (total float64, breakdown map[string]float64)

type RunnerRepo interface {
	// FindActiveJobFlow resolves tenantSlug/publicSlug to a job in active
	// status with a published flow version; nil when either is missing.
	FindActiveJobFlow(ctx context.Context, tenantSlug, publicSlug string) (*JobFlow, error)
	// CreateDraft inserts the candidate and the step-zero application in one
	// transaction.
	CreateDraft(ctx context.Context, cand *models.Candidate, app *models.Application) error
	FindApplication(ctx context.Context, tenantSlug, publicSlug, applicationID string) (*ApplicationContext, error)
	ListAnswers(ctx context.Context, applicationID string) ([]flow.SavedAnswer, error)
	// ReplaceNodeAnswers deletes all answers for nodeKey, inserts the given
	// ones, and persists the rescored totals in one transaction.
	ReplaceNodeAnswers(ctx context.Context, app *models.Application, nodeKey string, answers []flow.SavedAnswer, rescore RescoreFunc) error
	// FinalizeApplication sets status/stage/score/submitted_at guarded by
	// submitted_at IS NULL. Returns false when another submit won the race.
	FinalizeApplication(ctx context.Context, applicationID string, outcome flow.Outcome, total float64, breakdown map[string]float64, submittedAt time.Time) (bool, error)
	InsertMagicLink(ctx context.Context, link *models.MagicLink) error
	FindByMagicToken(ctx context.Context, token string, now time.Time) (*ApplicationContext, error)
}

type OutboxRepo interface {
	// Enqueue upserts by dedupe key: an existing item is returned untouched
	// apart from its updated timestamp.
	Enqueue(ctx context.Context, item *models.OutboxItem) (*models.OutboxItem, error)
	ListPending(ctx context.Context, limit int) ([]models.OutboxItem, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxItem, error)
	// ClaimDue leases a due item for delivery by pushing next_attempt_at to
	// leaseUntil, guarded by the observed attempts count. Returns false when
	// another dispatch cycle claimed the item first; a crashed delivery
	// becomes due again once the lease expires.
	ClaimDue(ctx context.Context, id string, attempts int, now, leaseUntil time.Time) (bool, error)
	MarkSent(ctx context.Context, id string, now time.Time) error
	// MarkRetry increments attempts and either schedules the next try or,
	// from the tenth attempt on, parks the item as failed.
	MarkRetry(ctx context.Context, id, errorMessage string, now time.Time) error
}
