package runner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/recruitflow/api/internal/flow"
	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/pkg/repository"
)

// ErrNotFound covers absent entities and cross-tenant or cross-job access
// alike, so callers cannot distinguish the two.
var ErrNotFound = errors.New("not found")

// ErrUnknownNode means the referenced node key is not part of the
// application's flow version.
var ErrUnknownNode = errors.New("unknown node")

const (
	minLinkTTLDays     = 7
	maxLinkTTLDays     = 30
	defaultLinkTTLDays = 7
)

// Service orchestrates an application's lifecycle against the evaluator and
// the storage collaborator.
type Service struct {
	repo     repository.RunnerRepo
	logger   *slog.Logger
	now      func() time.Time
	newToken func() string
}

func New(repo repository.RunnerRepo, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &Service{
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		newToken: newMagicToken,
	}
}

// SetNow overrides the clock, for tests.
func (s *Service) SetNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetTokenSource overrides magic-link token generation, for tests.
func (s *Service) SetTokenSource(gen func() string) {
	if gen != nil {
		s.newToken = gen
	}
}

// newMagicToken returns an opaque 192-bit random token, hex encoded.
func newMagicToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("read random: %v", err))
	}
	return hex.EncodeToString(buf)
}

// AnswerInput is one submitted answer for a node.
type AnswerInput struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
}

// Draft is the runner's view of an in-progress application.
type Draft struct {
	Application  models.Application `json:"application"`
	Definition   flow.Definition    `json:"definition"`
	ScoringRules flow.ScoringRules  `json:"scoring_rules"`
	Answers      []flow.SavedAnswer `json:"answers"`
}

// SubmitResult reports a submission attempt. MissingRequired being non-empty
// means the application was left untouched; FinalizedNow is true only for
// the call that actually set submitted_at.
type SubmitResult struct {
	Application     models.Application `json:"application"`
	MissingRequired []string           `json:"missing_required,omitempty"`
	FinalizedNow    bool               `json:"finalized_now"`
}

// NextResult reports edge-based navigation from a node.
type NextResult struct {
	CurrentNodeKey string     `json:"current_node_key"`
	CurrentNode    *flow.Node `json:"current_node,omitempty"`
	NextNodeKey    string     `json:"next_node_key,omitempty"`
	NextNode       *flow.Node `json:"next_node,omitempty"`
	CurrentStep    int        `json:"current_step"`
	TotalSteps     int        `json:"total_steps"`
	ScoreTotal     float64    `json:"score_total"`
}

// MagicLinkResult is a freshly minted resume token.
type MagicLinkResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StartDraft creates a candidate and a step-zero application against the
// job's currently active flow version. The version binding is a snapshot:
// later publishes do not affect this application.
func (s *Service) StartDraft(ctx context.Context, tenantSlug, publicSlug string) (*Draft, error) {
	jf, err := s.repo.FindActiveJobFlow(ctx, tenantSlug, publicSlug)
	if err != nil {
		return nil, fmt.Errorf("find active job flow: %w", err)
	}
	if jf == nil {
		return nil, ErrNotFound
	}

	cand := &models.Candidate{ID: uuid.NewString(), TenantID: jf.Job.TenantID}
	app := &models.Application{
		ID:             uuid.NewString(),
		TenantID:       jf.Job.TenantID,
		CandidateID:    cand.ID,
		JobID:          jf.Job.ID,
		FlowVersionID:  jf.VersionID,
		Status:         "new",
		Stage:          "New",
		ScoreBreakdown: map[string]float64{},
	}
	if err := s.repo.CreateDraft(ctx, cand, app); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	s.logger.Info("application draft started", "application_id", app.ID, "job_id", jf.Job.ID, "flow_version_id", jf.VersionID)

	return &Draft{
		Application:  *app,
		Definition:   jf.Definition,
		ScoringRules: jf.ScoringRules,
		Answers:      []flow.SavedAnswer{},
	}, nil
}

// SaveAnswers replaces the node's answers and rescores the whole application
// in one storage transaction.
func (s *Service) SaveAnswers(ctx context.Context, tenantSlug, publicSlug, applicationID, nodeKey string, inputs []AnswerInput) (*Draft, error) {
	ac, err := s.repo.FindApplication(ctx, tenantSlug, publicSlug, applicationID)
	if err != nil {
		return nil, fmt.Errorf("find application: %w", err)
	}
	if ac == nil {
		return nil, ErrNotFound
	}

	node := ac.Definition.FindNode(nodeKey)
	if node == nil {
		return nil, ErrUnknownNode
	}

	answers := make([]flow.SavedAnswer, 0, len(inputs))
	for _, in := range inputs {
		answers = append(answers, flow.SavedAnswer{
			NodeKey:      nodeKey,
			QuestionID:   in.QuestionID,
			QuestionText: questionText(node, in.QuestionID),
			Value:        in.Value,
		})
	}

	rescore := func(all []flow.SavedAnswer) (float64, map[string]float64) {
		return flow.ScoreAnswers(ac.Definition, all)
	}
	if err := s.repo.ReplaceNodeAnswers(ctx, &ac.App, nodeKey, answers, rescore); err != nil {
		return nil, fmt.Errorf("replace node answers: %w", err)
	}

	all, err := s.repo.ListAnswers(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	return &Draft{
		Application:  ac.App,
		Definition:   ac.Definition,
		ScoringRules: ac.ScoringRules,
		Answers:      all,
	}, nil
}

// questionText snapshots the question or field label for an answer. Unknown
// ids keep an empty snapshot rather than failing the save.
func questionText(node *flow.Node, questionID string) string {
	if questionID == flow.ConsentQuestionID {
		return "Consent"
	}
	for _, q := range node.Config.Questions {
		if q.ID == questionID {
			return q.Text
		}
	}
	for _, f := range node.Config.Fields {
		if f.ID == questionID {
			return f.Label
		}
	}
	return ""
}

// Submit finalizes the application. Once submitted_at is set the call is
// idempotent and returns the stored result without rescoring.
func (s *Service) Submit(ctx context.Context, tenantSlug, publicSlug, applicationID string) (*SubmitResult, error) {
	ac, err := s.repo.FindApplication(ctx, tenantSlug, publicSlug, applicationID)
	if err != nil {
		return nil, fmt.Errorf("find application: %w", err)
	}
	if ac == nil {
		return nil, ErrNotFound
	}

	if ac.App.SubmittedAt != nil {
		return &SubmitResult{Application: ac.App, FinalizedNow: false}, nil
	}

	answers, err := s.repo.ListAnswers(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	missing := flow.MissingRequired(ac.Definition, answers)
	if len(missing) > 0 {
		return &SubmitResult{Application: ac.App, MissingRequired: missing, FinalizedNow: false}, nil
	}

	total, breakdown := flow.ScoreAnswers(ac.Definition, answers)
	outcome := flow.ResolveOutcome(total, ac.ScoringRules)
	submittedAt := s.now().UTC()

	won, err := s.repo.FinalizeApplication(ctx, applicationID, outcome, total, breakdown, submittedAt)
	if err != nil {
		return nil, fmt.Errorf("finalize application: %w", err)
	}
	if !won {
		// lost the race to a concurrent submit; report the stored state
		refreshed, err := s.repo.FindApplication(ctx, tenantSlug, publicSlug, applicationID)
		if err != nil {
			return nil, fmt.Errorf("refresh application: %w", err)
		}
		if refreshed == nil {
			return nil, ErrNotFound
		}
		return &SubmitResult{Application: refreshed.App, FinalizedNow: false}, nil
	}

	ac.App.Status = outcome.Status
	ac.App.Stage = outcome.Stage
	ac.App.ScoreTotal = total
	ac.App.ScoreBreakdown = breakdown
	ac.App.SubmittedAt = &submittedAt

	s.logger.Info("application submitted", "application_id", applicationID, "status", outcome.Status, "score_total", total)

	return &SubmitResult{Application: ac.App, FinalizedNow: true}, nil
}

// NextNode resolves navigation from the given node over the current answer
// set. It is a read query; the stored score is already kept current by
// SaveAnswers.
func (s *Service) NextNode(ctx context.Context, tenantSlug, publicSlug, applicationID, currentNodeKey string) (*NextResult, error) {
	ac, err := s.repo.FindApplication(ctx, tenantSlug, publicSlug, applicationID)
	if err != nil {
		return nil, fmt.Errorf("find application: %w", err)
	}
	if ac == nil {
		return nil, ErrNotFound
	}

	answers, err := s.repo.ListAnswers(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	total, _ := flow.ScoreAnswers(ac.Definition, answers)

	res := &NextResult{
		CurrentNodeKey: currentNodeKey,
		CurrentNode:    ac.Definition.FindNode(currentNodeKey),
		CurrentStep:    1,
		TotalSteps:     len(ac.Definition.Nodes),
		ScoreTotal:     total,
	}
	for i, n := range ac.Definition.Nodes {
		if n.Key == currentNodeKey {
			res.CurrentStep = i + 1
			break
		}
	}

	if next, ok := flow.ResolveNextNode(ac.Definition, currentNodeKey, answers, total); ok {
		res.NextNodeKey = next
		res.NextNode = ac.Definition.FindNode(next)
	}

	return res, nil
}

// IssueMagicLink mints a resume token for the application. TTL is clamped
// to [7,30] days; zero means the default of 7. Prior tokens stay valid.
func (s *Service) IssueMagicLink(ctx context.Context, tenantSlug, publicSlug, applicationID string, ttlDays int) (*MagicLinkResult, error) {
	ac, err := s.repo.FindApplication(ctx, tenantSlug, publicSlug, applicationID)
	if err != nil {
		return nil, fmt.Errorf("find application: %w", err)
	}
	if ac == nil {
		return nil, ErrNotFound
	}

	if ttlDays == 0 {
		ttlDays = defaultLinkTTLDays
	}
	if ttlDays < minLinkTTLDays {
		ttlDays = minLinkTTLDays
	}
	if ttlDays > maxLinkTTLDays {
		ttlDays = maxLinkTTLDays
	}

	link := &models.MagicLink{
		Token:         s.newToken(),
		ApplicationID: applicationID,
		ExpiresAt:     s.now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}
	if err := s.repo.InsertMagicLink(ctx, link); err != nil {
		return nil, fmt.Errorf("insert magic link: %w", err)
	}

	return &MagicLinkResult{Token: link.Token, ExpiresAt: link.ExpiresAt}, nil
}

// ResumeByToken restores the full draft for a live token. The token alone
// is the authorization proof; no tenant/job scoping applies.
func (s *Service) ResumeByToken(ctx context.Context, token string) (*Draft, error) {
	ac, err := s.repo.FindByMagicToken(ctx, token, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("find by magic token: %w", err)
	}
	if ac == nil {
		return nil, ErrNotFound
	}

	answers, err := s.repo.ListAnswers(ctx, ac.App.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	return &Draft{
		Application:  ac.App,
		Definition:   ac.Definition,
		ScoringRules: ac.ScoringRules,
		Answers:      answers,
	}, nil
}
