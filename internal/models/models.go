package models

import (
	"time"

	"github.com/recruitflow/api/internal/flow"
)

type Tenant struct {
	ID       string    `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	Slug     string    `json:"slug" db:"slug"`
	Timezone string    `json:"timezone" db:"timezone"`
	Locale   string    `json:"locale" db:"locale"`
	Created  time.Time `json:"created" db:"created"`
	Updated  time.Time `json:"updated" db:"updated"`
}

type UserRole string

const (
	RoleOwner     UserRole = "owner"
	RoleAdminHR   UserRole = "admin_hr"
	RoleRecruiter UserRole = "recruiter"
	RoleViewer    UserRole = "viewer"
)

type User struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	TenantSlug   string    `json:"tenant_slug,omitempty" db:"-"`
	Email        string    `json:"email" db:"email"`
	FullName     string    `json:"full_name" db:"full_name"`
	Role         UserRole  `json:"role" db:"role"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Created      time.Time `json:"created" db:"created"`
	Updated      time.Time `json:"updated" db:"updated"`
}

type JobStatus string

const (
	JobDraft    JobStatus = "draft"
	JobActive   JobStatus = "active"
	JobPaused   JobStatus = "paused"
	JobArchived JobStatus = "archived"
)

type Job struct {
	ID                  string    `json:"id" db:"id"`
	TenantID            string    `json:"tenant_id" db:"tenant_id"`
	Title               string    `json:"title" db:"title"`
	Status              JobStatus `json:"status" db:"status"`
	PublicSlug          string    `json:"public_slug" db:"public_slug"`
	WorkFormat          string    `json:"work_format" db:"work_format"`
	EmploymentType      string    `json:"employment_type" db:"employment_type"`
	DescriptionShort    string    `json:"description_short,omitempty" db:"description_short"`
	OwnerUserID         string    `json:"owner_user_id" db:"owner_user_id"`
	ActiveFlowVersionID string    `json:"active_flow_version_id,omitempty" db:"active_flow_version_id"`
	Created             time.Time `json:"created" db:"created"`
	Updated             time.Time `json:"updated" db:"updated"`
}

// FlowVersion is an immutable snapshot of a published flow definition plus
// its scoring rules. In-flight applications stay bound to their version even
// after the job publishes a newer one.
type FlowVersion struct {
	ID           string            `json:"id" db:"id"`
	TenantID     string            `json:"tenant_id" db:"tenant_id"`
	JobID        string            `json:"job_id" db:"job_id"`
	Version      int               `json:"version" db:"version"`
	Definition   flow.Definition   `json:"definition" db:"definition"`
	ScoringRules flow.ScoringRules `json:"scoring_rules" db:"scoring_rules"`
	Created      time.Time         `json:"created" db:"created"`
}

type Candidate struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	FullName  string    `json:"full_name,omitempty" db:"full_name"`
	PhoneE164 string    `json:"phone_e164,omitempty" db:"phone_e164"`
	Email     string    `json:"email,omitempty" db:"email"`
	Created   time.Time `json:"created" db:"created"`
	Updated   time.Time `json:"updated" db:"updated"`
}

// Application is one candidate's pass through a job's flow. Status is
// machine-readable, Stage the matching human label. SubmittedAt is
// write-once: once set, submission is idempotent.
type Application struct {
	ID             string             `json:"id" db:"id"`
	TenantID       string             `json:"tenant_id" db:"tenant_id"`
	CandidateID    string             `json:"candidate_id" db:"candidate_id"`
	JobID          string             `json:"job_id" db:"job_id"`
	FlowVersionID  string             `json:"flow_version_id" db:"flow_version_id"`
	Status         string             `json:"status" db:"status"`
	Stage          string             `json:"stage" db:"stage"`
	ScoreTotal     float64            `json:"score_total" db:"score_total"`
	ScoreBreakdown map[string]float64 `json:"score_breakdown" db:"score_breakdown"`
	SubmittedAt    *time.Time         `json:"submitted_at,omitempty" db:"submitted_at"`
	Created        time.Time          `json:"created" db:"created"`
	Updated        time.Time          `json:"updated" db:"updated"`
}

// MagicLink grants stateless resume access to an application. Links stay
// usable until expiry; use does not consume them.
type MagicLink struct {
	Token         string    `json:"token" db:"token"`
	ApplicationID string    `json:"application_id" db:"application_id"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	Created       time.Time `json:"created" db:"created"`
}

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// EventApplicationSubmitted is the only event type the outbox carries today.
const EventApplicationSubmitted = "application_submitted"

// OutboxItem is one durable at-least-once delivery. Failed is terminal;
// rows are kept for audit and never deleted.
type OutboxItem struct {
	ID            string         `json:"id" db:"id"`
	EventType     string         `json:"event_type" db:"event_type"`
	Payload       map[string]any `json:"payload" db:"payload"`
	Status        OutboxStatus   `json:"status" db:"status"`
	Attempts      int            `json:"attempts" db:"attempts"`
	NextAttemptAt time.Time      `json:"next_attempt_at" db:"next_attempt_at"`
	DedupeKey     string         `json:"dedupe_key" db:"dedupe_key"`
	LastError     string         `json:"last_error,omitempty" db:"last_error"`
	Created       time.Time      `json:"created" db:"created"`
	Updated       time.Time      `json:"updated" db:"updated"`
}
