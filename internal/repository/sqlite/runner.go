package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/recruitflow/api/internal/flow"
	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/pkg/repository"
)

func (r *SQLiteRepo) FindActiveJobFlow(ctx context.Context, tenantSlug, publicSlug string) (*repository.JobFlow, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT j.id, j.tenant_id, j.title, j.status, j.public_slug, j.work_format, j.employment_type, j.description_short, j.owner_user_id, j.active_flow_version_id, j.created, j.updated,
		        fv.id, fv.definition, fv.scoring_rules
		 FROM jobs j
		 JOIN tenants t ON t.id = j.tenant_id
		 JOIN flow_versions fv ON fv.id = j.active_flow_version_id
		 WHERE t.slug = ? AND j.public_slug = ? AND j.status = 'active'`, tenantSlug, publicSlug)

	var j models.Job
	var desc, activeFV sql.NullString
	var created, updated int64
	var versionID, defJSON, rulesJSON string
	err := row.Scan(&j.ID, &j.TenantID, &j.Title, &j.Status, &j.PublicSlug, &j.WorkFormat, &j.EmploymentType, &desc, &j.OwnerUserID, &activeFV, &created, &updated,
		&versionID, &defJSON, &rulesJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	j.DescriptionShort = desc.String
	j.ActiveFlowVersionID = activeFV.String
	j.Created = fromTS(created)
	j.Updated = fromTS(updated)

	jf := &repository.JobFlow{Job: j, VersionID: versionID}
	if err := json.Unmarshal([]byte(defJSON), &jf.Definition); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	if err := json.Unmarshal([]byte(rulesJSON), &jf.ScoringRules); err != nil {
		return nil, fmt.Errorf("decode scoring rules: %w", err)
	}

	return jf, nil
}

func (r *SQLiteRepo) CreateDraft(ctx context.Context, cand *models.Candidate, app *models.Application) error {
	if cand == nil || app == nil {
		return fmt.Errorf("candidate or application is nil")
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n := now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO candidates (id, tenant_id, full_name, phone_e164, email, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cand.ID, cand.TenantID, cand.FullName, cand.PhoneE164, cand.Email, n, n)
	if err != nil {
		return err
	}

	breakdown, err := json.Marshal(app.ScoreBreakdown)
	if err != nil {
		return fmt.Errorf("marshal score breakdown: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO applications (id, tenant_id, candidate_id, job_id, flow_version_id, status, stage, score_total, score_breakdown, created, updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.TenantID, app.CandidateID, app.JobID, app.FlowVersionID, app.Status, app.Stage, app.ScoreTotal, string(breakdown), n, n)
	if err != nil {
		return err
	}

	cand.Created = fromTS(n)
	cand.Updated = fromTS(n)
	app.Created = fromTS(n)
	app.Updated = fromTS(n)

	return tx.Commit()
}

const appContextQuery = `SELECT a.id, a.tenant_id, a.candidate_id, a.job_id, a.flow_version_id, a.status, a.stage, a.score_total, a.score_breakdown, a.submitted_at, a.created, a.updated,
        fv.definition, fv.scoring_rules
 FROM applications a
 JOIN flow_versions fv ON fv.id = a.flow_version_id`

func scanAppContext(row interface{ Scan(...any) error }) (*repository.ApplicationContext, error) {
	var app models.Application
	var breakdownJSON, defJSON, rulesJSON string
	var submitted sql.NullInt64
	var created, updated int64
	err := row.Scan(&app.ID, &app.TenantID, &app.CandidateID, &app.JobID, &app.FlowVersionID, &app.Status, &app.Stage, &app.ScoreTotal, &breakdownJSON, &submitted, &created, &updated,
		&defJSON, &rulesJSON)
	if err != nil {
		return nil, err
	}

	if submitted.Valid {
		t := fromTS(submitted.Int64)
		app.SubmittedAt = &t
	}
	app.Created = fromTS(created)
	app.Updated = fromTS(updated)
	if err := json.Unmarshal([]byte(breakdownJSON), &app.ScoreBreakdown); err != nil {
		return nil, fmt.Errorf("decode score breakdown: %w", err)
	}

	ac := &repository.ApplicationContext{App: app}
	if err := json.Unmarshal([]byte(defJSON), &ac.Definition); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	if err := json.Unmarshal([]byte(rulesJSON), &ac.ScoringRules); err != nil {
		return nil, fmt.Errorf("decode scoring rules: %w", err)
	}

	return ac, nil
}

func (r *SQLiteRepo) FindApplication(ctx context.Context, tenantSlug, publicSlug, applicationID string) (*repository.ApplicationContext, error) {
	row := r.conn.QueryRow(ctx, appContextQuery+`
		 JOIN jobs j ON j.id = a.job_id
		 JOIN tenants t ON t.id = a.tenant_id
		 WHERE t.slug = ? AND j.public_slug = ? AND a.id = ?`, tenantSlug, publicSlug, applicationID)
	ac, err := scanAppContext(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return ac, nil
}

func (r *SQLiteRepo) ListAnswers(ctx context.Context, applicationID string) ([]flow.SavedAnswer, error) {
	rows, err := r.conn.QueryRows(ctx,
		`SELECT node_key, question_id, question_text_snapshot, value
		 FROM application_answers WHERE application_id = ? ORDER BY answered, id`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAnswers(rows)
}

func collectAnswers(rows *sql.Rows) ([]flow.SavedAnswer, error) {
	answers := []flow.SavedAnswer{}
	for rows.Next() {
		var a flow.SavedAnswer
		var valueJSON sql.NullString
		if err := rows.Scan(&a.NodeKey, &a.QuestionID, &a.QuestionText, &valueJSON); err != nil {
			return nil, err
		}
		if valueJSON.Valid {
			if err := json.Unmarshal([]byte(valueJSON.String), &a.Value); err != nil {
				return nil, fmt.Errorf("decode answer value: %w", err)
			}
		}
		answers = append(answers, a)
	}

	return answers, rows.Err()
}

func (r *SQLiteRepo) ReplaceNodeAnswers(ctx context.Context, app *models.Application, nodeKey string, answers []flow.SavedAnswer, rescore repository.RescoreFunc) error {
	if app == nil {
		return fmt.Errorf("application is nil")
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM application_answers WHERE application_id = ? AND node_key = ?`, app.ID, nodeKey); err != nil {
		return err
	}

	n := now()
	for _, a := range answers {
		valueJSON, err := json.Marshal(a.Value)
		if err != nil {
			return fmt.Errorf("marshal answer value: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO application_answers (id, tenant_id, application_id, node_key, question_id, question_text_snapshot, value, answered)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), app.TenantID, app.ID, nodeKey, a.QuestionID, a.QuestionText, string(valueJSON), n)
		if err != nil {
			return err
		}
	}

	// Rescore over the full answer set within the same transaction so the
	// stored totals can never drift from the stored answers.
	rows, err := tx.QueryContext(ctx,
		`SELECT node_key, question_id, question_text_snapshot, value
		 FROM application_answers WHERE application_id = ? ORDER BY answered, id`, app.ID)
	if err != nil {
		return err
	}
	all, err := collectAnswers(rows)
	if err != nil {
		return err
	}

	total, breakdown := rescore(all)
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("marshal score breakdown: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE applications SET score_total = ?, score_breakdown = ?, updated = ? WHERE id = ?`,
		total, string(breakdownJSON), n, app.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	app.ScoreTotal = total
	app.ScoreBreakdown = breakdown
	app.Updated = fromTS(n)

	return nil
}

func (r *SQLiteRepo) FinalizeApplication(ctx context.Context, applicationID string, outcome flow.Outcome, total float64, breakdown map[string]float64, submittedAt time.Time) (bool, error) {
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return false, fmt.Errorf("marshal score breakdown: %w", err)
	}

	res, err := r.conn.Exec(ctx,
		`UPDATE applications SET status = ?, stage = ?, score_total = ?, score_breakdown = ?, submitted_at = ?, updated = ?
		 WHERE id = ? AND submitted_at IS NULL`,
		outcome.Status, outcome.Stage, total, string(breakdownJSON), ts(submittedAt), now(), applicationID)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (r *SQLiteRepo) InsertMagicLink(ctx context.Context, link *models.MagicLink) error {
	if link == nil {
		return fmt.Errorf("magic link is nil")
	}

	n := now()
	_, err := r.conn.Exec(ctx,
		`INSERT INTO flow_magic_links (token, application_id, expires_at, created) VALUES (?, ?, ?, ?)`,
		link.Token, link.ApplicationID, ts(link.ExpiresAt), n)
	if err != nil {
		return err
	}

	link.Created = fromTS(n)

	return nil
}

func (r *SQLiteRepo) FindByMagicToken(ctx context.Context, token string, nowTime time.Time) (*repository.ApplicationContext, error) {
	row := r.conn.QueryRow(ctx, appContextQuery+`
		 JOIN flow_magic_links ml ON ml.application_id = a.id
		 WHERE ml.token = ? AND ml.expires_at > ?`, token, ts(nowTime))
	ac, err := scanAppContext(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return ac, nil
}
