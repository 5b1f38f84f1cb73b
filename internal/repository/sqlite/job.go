package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/recruitflow/api/internal/models"
)

const jobColumns = `id, tenant_id, title, status, public_slug, work_format, employment_type, description_short, owner_user_id, active_flow_version_id, created, updated`

func scanJob(row interface{ Scan(...any) error }) (*models.Job, error) {
	var j models.Job
	var desc, activeFV sql.NullString
	var created, updated int64
	if err := row.Scan(&j.ID, &j.TenantID, &j.Title, &j.Status, &j.PublicSlug, &j.WorkFormat, &j.EmploymentType, &desc, &j.OwnerUserID, &activeFV, &created, &updated); err != nil {
		return nil, err
	}

	j.DescriptionShort = desc.String
	j.ActiveFlowVersionID = activeFV.String
	j.Created = fromTS(created)
	j.Updated = fromTS(updated)

	return &j, nil
}

func (r *SQLiteRepo) CreateJobWithFlow(ctx context.Context, j *models.Job, fv *models.FlowVersion) error {
	if j == nil || fv == nil {
		return fmt.Errorf("job or flow version is nil")
	}

	defJSON, err := json.Marshal(fv.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	rulesJSON, err := json.Marshal(fv.ScoringRules)
	if err != nil {
		return fmt.Errorf("marshal scoring rules: %w", err)
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n := now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, tenant_id, title, status, public_slug, work_format, employment_type, description_short, owner_user_id, created, updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.TenantID, j.Title, j.Status, j.PublicSlug, j.WorkFormat, j.EmploymentType, j.DescriptionShort, j.OwnerUserID, n, n)
	if err != nil {
		return err
	}

	fv.Version = 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO flow_versions (id, tenant_id, job_id, version, definition, scoring_rules, created) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fv.ID, fv.TenantID, fv.JobID, fv.Version, string(defJSON), string(rulesJSON), n)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET active_flow_version_id = ? WHERE id = ?`, fv.ID, j.ID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	j.ActiveFlowVersionID = fv.ID
	j.Created = fromTS(n)
	j.Updated = fromTS(n)
	fv.Created = fromTS(n)

	return nil
}

func (r *SQLiteRepo) ListJobs(ctx context.Context, tenantID string) ([]models.Job, error) {
	rows, err := r.conn.QueryRows(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE tenant_id = ? ORDER BY created DESC, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}

	return jobs, rows.Err()
}

func (r *SQLiteRepo) GetJob(ctx context.Context, tenantID, jobID string) (*models.Job, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE tenant_id = ? AND id = ?`, tenantID, jobID)
	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return j, nil
}

func (r *SQLiteRepo) UpdateJob(ctx context.Context, j *models.Job) error {
	if j == nil {
		return fmt.Errorf("job is nil")
	}

	n := now()
	_, err := r.conn.Exec(ctx,
		`UPDATE jobs SET title = ?, status = ?, work_format = ?, employment_type = ?, description_short = ?, updated = ?
		 WHERE tenant_id = ? AND id = ?`,
		j.Title, j.Status, j.WorkFormat, j.EmploymentType, j.DescriptionShort, n, j.TenantID, j.ID)
	if err != nil {
		return err
	}

	j.Updated = fromTS(n)

	return nil
}

func (r *SQLiteRepo) FindPublicJob(ctx context.Context, tenantSlug, publicSlug string) (*models.Job, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT j.id, j.tenant_id, j.title, j.status, j.public_slug, j.work_format, j.employment_type, j.description_short, j.owner_user_id, j.active_flow_version_id, j.created, j.updated
		 FROM jobs j JOIN tenants t ON t.id = j.tenant_id
		 WHERE t.slug = ? AND j.public_slug = ?`, tenantSlug, publicSlug)
	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return j, nil
}

func (r *SQLiteRepo) PublishFlowVersion(ctx context.Context, fv *models.FlowVersion) error {
	if fv == nil {
		return fmt.Errorf("flow version is nil")
	}

	defJSON, err := json.Marshal(fv.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	rulesJSON, err := json.Marshal(fv.ScoringRules)
	if err != nil {
		return fmt.Errorf("marshal scoring rules: %w", err)
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Version numbers are per job, monotonically increasing.
	var maxVersion sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM flow_versions WHERE job_id = ?`, fv.JobID).Scan(&maxVersion); err != nil {
		return err
	}
	fv.Version = int(maxVersion.Int64) + 1

	n := now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO flow_versions (id, tenant_id, job_id, version, definition, scoring_rules, created) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fv.ID, fv.TenantID, fv.JobID, fv.Version, string(defJSON), string(rulesJSON), n)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET active_flow_version_id = ?, updated = ? WHERE tenant_id = ? AND id = ?`,
		fv.ID, n, fv.TenantID, fv.JobID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found", fv.JobID)
	}

	fv.Created = fromTS(n)

	return tx.Commit()
}
