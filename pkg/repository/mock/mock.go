package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/recruitflow/api/internal/flow"
	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	Auth   *AuthRepo
	Jobs   *JobRepo
	Runner *RunnerRepo
	Outbox *OutboxRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		Auth:   &AuthRepo{},
		Jobs:   &JobRepo{},
		Runner: NewRunnerRepo(),
		Outbox: NewOutboxRepo(),
	}
}

type AuthRepo struct {
	Tenant       *models.Tenant
	Owner        *models.User
	BootstrapErr error
}

var _ repository.AuthRepo = (*AuthRepo)(nil)

func (m *AuthRepo) BootstrapTenantOwner(_ context.Context, tenant *models.Tenant, owner *models.User) error {
	if m.BootstrapErr != nil {
		return m.BootstrapErr
	}
	if m.Tenant != nil && m.Tenant.Slug == tenant.Slug {
		return fmt.Errorf("UNIQUE constraint failed: tenants.slug")
	}
	m.Tenant = tenant
	m.Owner = owner
	return nil
}

func (m *AuthRepo) FindUserByCredentials(_ context.Context, tenantSlug, email string) (*models.User, error) {
	if m.Owner != nil && m.Tenant != nil && m.Tenant.Slug == tenantSlug && m.Owner.Email == email {
		u := *m.Owner
		u.TenantSlug = m.Tenant.Slug
		return &u, nil
	}
	return nil, nil
}

type JobRepo struct {
	Stored     []*models.Job
	Versions   []*models.FlowVersion
	CreateErr  error
	PublishErr error
}

var _ repository.JobRepo = (*JobRepo)(nil)

func (m *JobRepo) CreateJobWithFlow(_ context.Context, j *models.Job, fv *models.FlowVersion) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, s := range m.Stored {
		if s.TenantID == j.TenantID && s.PublicSlug == j.PublicSlug {
			return fmt.Errorf("UNIQUE constraint failed: jobs.public_slug")
		}
	}
	fv.Version = 1
	j.ActiveFlowVersionID = fv.ID
	m.Stored = append(m.Stored, j)
	m.Versions = append(m.Versions, fv)
	return nil
}

func (m *JobRepo) ListJobs(_ context.Context, tenantID string) ([]models.Job, error) {
	out := []models.Job{}
	for _, j := range m.Stored {
		if j.TenantID == tenantID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *JobRepo) GetJob(_ context.Context, tenantID, jobID string) (*models.Job, error) {
	for _, j := range m.Stored {
		if j.TenantID == tenantID && j.ID == jobID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *JobRepo) UpdateJob(_ context.Context, j *models.Job) error {
	for i, s := range m.Stored {
		if s.TenantID == j.TenantID && s.ID == j.ID {
			cp := *j
			m.Stored[i] = &cp
			return nil
		}
	}
	return nil
}

func (m *JobRepo) FindPublicJob(_ context.Context, tenantSlug, publicSlug string) (*models.Job, error) {
	for _, j := range m.Stored {
		if j.PublicSlug == publicSlug {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *JobRepo) PublishFlowVersion(_ context.Context, fv *models.FlowVersion) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	fv.Version = 1
	for _, v := range m.Versions {
		if v.JobID == fv.JobID && v.Version >= fv.Version {
			fv.Version = v.Version + 1
		}
	}
	m.Versions = append(m.Versions, fv)
	for _, j := range m.Stored {
		if j.ID == fv.JobID {
			j.ActiveFlowVersionID = fv.ID
		}
	}
	return nil
}

type RunnerRepo struct {
	Flows   map[string]*repository.JobFlow // tenantSlug/publicSlug
	Apps    map[string]*models.Application
	Answers map[string][]flow.SavedAnswer
	Links   map[string]*models.MagicLink
}

var _ repository.RunnerRepo = (*RunnerRepo)(nil)

func NewRunnerRepo() *RunnerRepo {
	return &RunnerRepo{
		Flows:   map[string]*repository.JobFlow{},
		Apps:    map[string]*models.Application{},
		Answers: map[string][]flow.SavedAnswer{},
		Links:   map[string]*models.MagicLink{},
	}
}

// AddActiveJob registers an active job with the default flow under the given
// public path.
func (m *RunnerRepo) AddActiveJob(tenantSlug, publicSlug string) *repository.JobFlow {
	jf := &repository.JobFlow{
		Job: models.Job{
			ID:         "job-" + publicSlug,
			TenantID:   "tenant-" + tenantSlug,
			Status:     models.JobActive,
			PublicSlug: publicSlug,
		},
		VersionID:    "fv-" + publicSlug,
		Definition:   flow.DefaultDefinition(),
		ScoringRules: flow.DefaultScoringRules(),
	}
	m.Flows[tenantSlug+"/"+publicSlug] = jf
	return jf
}

func (m *RunnerRepo) FindActiveJobFlow(_ context.Context, tenantSlug, publicSlug string) (*repository.JobFlow, error) {
	return m.Flows[tenantSlug+"/"+publicSlug], nil
}

func (m *RunnerRepo) CreateDraft(_ context.Context, cand *models.Candidate, app *models.Application) error {
	cp := *app
	m.Apps[app.ID] = &cp
	return nil
}

func (m *RunnerRepo) FindApplication(_ context.Context, tenantSlug, publicSlug, applicationID string) (*repository.ApplicationContext, error) {
	app, ok := m.Apps[applicationID]
	if !ok {
		return nil, nil
	}
	jf := m.Flows[tenantSlug+"/"+publicSlug]
	if jf == nil || jf.Job.ID != app.JobID {
		return nil, nil
	}
	cp := *app
	return &repository.ApplicationContext{App: cp, Definition: jf.Definition, ScoringRules: jf.ScoringRules}, nil
}

func (m *RunnerRepo) ListAnswers(_ context.Context, applicationID string) ([]flow.SavedAnswer, error) {
	return append([]flow.SavedAnswer{}, m.Answers[applicationID]...), nil
}

func (m *RunnerRepo) ReplaceNodeAnswers(_ context.Context, app *models.Application, nodeKey string, answers []flow.SavedAnswer, rescore repository.RescoreFunc) error {
	kept := []flow.SavedAnswer{}
	for _, a := range m.Answers[app.ID] {
		if a.NodeKey != nodeKey {
			kept = append(kept, a)
		}
	}
	kept = append(kept, answers...)
	m.Answers[app.ID] = kept

	total, breakdown := rescore(kept)
	if stored, ok := m.Apps[app.ID]; ok {
		stored.ScoreTotal = total
		stored.ScoreBreakdown = breakdown
	}
	app.ScoreTotal = total
	app.ScoreBreakdown = breakdown
	return nil
}

func (m *RunnerRepo) FinalizeApplication(_ context.Context, applicationID string, outcome flow.Outcome, total float64, breakdown map[string]float64, submittedAt time.Time) (bool, error) {
	app, ok := m.Apps[applicationID]
	if !ok || app.SubmittedAt != nil {
		return false, nil
	}
	app.Status = outcome.Status
	app.Stage = outcome.Stage
	app.ScoreTotal = total
	app.ScoreBreakdown = breakdown
	t := submittedAt
	app.SubmittedAt = &t
	return true, nil
}

func (m *RunnerRepo) InsertMagicLink(_ context.Context, link *models.MagicLink) error {
	m.Links[link.Token] = link
	return nil
}

func (m *RunnerRepo) FindByMagicToken(_ context.Context, token string, now time.Time) (*repository.ApplicationContext, error) {
	link, ok := m.Links[token]
	if !ok || !now.Before(link.ExpiresAt) {
		return nil, nil
	}
	app, ok := m.Apps[link.ApplicationID]
	if !ok {
		return nil, nil
	}
	for _, jf := range m.Flows {
		if jf.Job.ID == app.JobID {
			cp := *app
			return &repository.ApplicationContext{App: cp, Definition: jf.Definition, ScoringRules: jf.ScoringRules}, nil
		}
	}
	return nil, nil
}

type OutboxRepo struct {
	Items      map[string]*models.OutboxItem // by dedupe key
	EnqueueErr error
}

var _ repository.OutboxRepo = (*OutboxRepo)(nil)

func NewOutboxRepo() *OutboxRepo {
	return &OutboxRepo{Items: map[string]*models.OutboxItem{}}
}

func (m *OutboxRepo) Enqueue(_ context.Context, item *models.OutboxItem) (*models.OutboxItem, error) {
	if m.EnqueueErr != nil {
		return nil, m.EnqueueErr
	}
	if existing, ok := m.Items[item.DedupeKey]; ok {
		return existing, nil
	}
	cp := *item
	m.Items[item.DedupeKey] = &cp
	return &cp, nil
}

func (m *OutboxRepo) ListPending(_ context.Context, limit int) ([]models.OutboxItem, error) {
	out := []models.OutboxItem{}
	for _, item := range m.Items {
		if item.Status == models.OutboxPending && len(out) < limit {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (m *OutboxRepo) ListDue(_ context.Context, now time.Time, limit int) ([]models.OutboxItem, error) {
	out := []models.OutboxItem{}
	for _, item := range m.Items {
		if item.Status == models.OutboxPending && !item.NextAttemptAt.After(now) && len(out) < limit {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (m *OutboxRepo) ClaimDue(_ context.Context, id string, attempts int, now, leaseUntil time.Time) (bool, error) {
	for _, item := range m.Items {
		if item.ID == id && item.Status == models.OutboxPending && item.Attempts == attempts && !item.NextAttemptAt.After(now) {
			item.NextAttemptAt = leaseUntil
			return true, nil
		}
	}
	return false, nil
}

func (m *OutboxRepo) MarkSent(_ context.Context, id string, now time.Time) error {
	for _, item := range m.Items {
		if item.ID == id {
			item.Status = models.OutboxSent
			item.LastError = ""
		}
	}
	return nil
}

func (m *OutboxRepo) MarkRetry(_ context.Context, id, errorMessage string, now time.Time) error {
	for _, item := range m.Items {
		if item.ID == id {
			item.Attempts++
			item.LastError = errorMessage
			if item.Attempts >= 10 {
				item.Status = models.OutboxFailed
			} else {
				item.NextAttemptAt = now.Add(time.Minute)
			}
		}
	}
	return nil
}
