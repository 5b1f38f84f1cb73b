package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/recruitflow/api/internal/flow"
	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/pkg/repository"
)

type JobsHandler struct {
	jobRepo repository.JobRepo
}

func NewJobsHandler(jr repository.JobRepo) *JobsHandler {
	return &JobsHandler{jobRepo: jr}
}

type createJobRequest struct {
	Title            string `json:"title"`
	PublicSlug       string `json:"public_slug"`
	WorkFormat       string `json:"work_format"`
	EmploymentType   string `json:"employment_type"`
	DescriptionShort string `json:"description_short"`
}

type patchJobRequest struct {
	Title            *string `json:"title"`
	Status           *string `json:"status"`
	WorkFormat       *string `json:"work_format"`
	EmploymentType   *string `json:"employment_type"`
	DescriptionShort *string `json:"description_short"`
}

var validJobStatuses = map[models.JobStatus]bool{
	models.JobDraft:    true,
	models.JobActive:   true,
	models.JobPaused:   true,
	models.JobArchived: true,
}

// CreateJob stores the job as a draft and publishes the seed flow as version
// 1, so a job can go active without a separate flow-authoring step.
func (h *JobsHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.PublicSlug = strings.TrimSpace(req.PublicSlug)
	if req.Title == "" || req.PublicSlug == "" {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}
	if req.WorkFormat == "" {
		req.WorkFormat = "onsite"
	}
	if req.EmploymentType == "" {
		req.EmploymentType = "full_time"
	}

	ownerID, _ := r.Context().Value(CtxUserID).(string)
	job := &models.Job{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		Title:            req.Title,
		Status:           models.JobDraft,
		PublicSlug:       req.PublicSlug,
		WorkFormat:       req.WorkFormat,
		EmploymentType:   req.EmploymentType,
		DescriptionShort: req.DescriptionShort,
		OwnerUserID:      ownerID,
	}
	fv := &models.FlowVersion{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		JobID:        job.ID,
		Definition:   flow.DefaultDefinition(),
		ScoringRules: flow.DefaultScoringRules(),
	}
	if err := h.jobRepo.CreateJobWithFlow(r.Context(), job, fv); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "Public slug already taken", http.StatusConflict)
			return
		}
		logger.Error("create job", "error", err)
		http.Error(w, "Error creating job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, job, http.StatusCreated)
}

func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobs, err := h.jobRepo.ListJobs(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "Error listing jobs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"items": jobs, "total": len(jobs)}, http.StatusOK)
}

func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, err := h.jobRepo.GetJob(r.Context(), tenantID, mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Error loading job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, job, http.StatusOK)
}

func (h *JobsHandler) PatchJob(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, err := h.jobRepo.GetJob(r.Context(), tenantID, mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Error loading job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var req patchJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Title != nil {
		job.Title = strings.TrimSpace(*req.Title)
	}
	if req.Status != nil {
		status := models.JobStatus(*req.Status)
		if !validJobStatuses[status] {
			http.Error(w, "Invalid status", http.StatusBadRequest)
			return
		}
		if status == models.JobActive && job.ActiveFlowVersionID == "" {
			http.Error(w, "Job has no published flow", http.StatusConflict)
			return
		}
		job.Status = status
	}
	if req.WorkFormat != nil {
		job.WorkFormat = *req.WorkFormat
	}
	if req.EmploymentType != nil {
		job.EmploymentType = *req.EmploymentType
	}
	if req.DescriptionShort != nil {
		job.DescriptionShort = *req.DescriptionShort
	}
	if job.Title == "" {
		http.Error(w, "Title cannot be empty", http.StatusBadRequest)
		return
	}

	if err := h.jobRepo.UpdateJob(r.Context(), job); err != nil {
		http.Error(w, "Error updating job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, job, http.StatusOK)
}

type publishFlowRequest struct {
	Definition   json.RawMessage    `json:"definition"`
	ScoringRules *flow.ScoringRules `json:"scoring_rules"`
}

// PublishFlow validates the submitted definition and stores it as the next
// immutable version, repointing the job atomically.
func (h *JobsHandler) PublishFlow(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromContext(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job, err := h.jobRepo.GetJob(r.Context(), tenantID, mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Error loading job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	var req publishFlowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Definition) == 0 {
		http.Error(w, "definition is required", http.StatusBadRequest)
		return
	}

	def, err := flow.ValidateDefinition(r.Context(), req.Definition)
	if err != nil {
		writeJSON(w, map[string]any{"error": "invalid flow definition", "detail": err.Error()}, http.StatusUnprocessableEntity)
		return
	}

	rules := flow.DefaultScoringRules()
	if req.ScoringRules != nil {
		rules = *req.ScoringRules
	}

	fv := &models.FlowVersion{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		JobID:        job.ID,
		Definition:   *def,
		ScoringRules: rules,
	}
	if err := h.jobRepo.PublishFlowVersion(r.Context(), fv); err != nil {
		logger.Error("publish flow version", "error", err, "job_id", job.ID)
		http.Error(w, "Error publishing flow", http.StatusInternalServerError)
		return
	}

	writeJSON(w, fv, http.StatusCreated)
}

// PublicJob is the unauthenticated job card; only active jobs are visible.
func (h *JobsHandler) PublicJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	job, err := h.jobRepo.FindPublicJob(r.Context(), vars["tenantSlug"], vars["publicSlug"])
	if err != nil {
		http.Error(w, "Error loading job", http.StatusInternalServerError)
		return
	}
	if job == nil || job.Status != models.JobActive {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{
		"title":             job.Title,
		"public_slug":       job.PublicSlug,
		"work_format":       job.WorkFormat,
		"employment_type":   job.EmploymentType,
		"description_short": job.DescriptionShort,
	}, http.StatusOK)
}
