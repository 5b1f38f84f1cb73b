package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/recruitflow/api/internal/models"
)

func (r *SQLiteRepo) BootstrapTenantOwner(ctx context.Context, tenant *models.Tenant, owner *models.User) error {
	if tenant == nil || owner == nil {
		return fmt.Errorf("tenant or owner is nil")
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	n := now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug, timezone, locale, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID, tenant.Name, tenant.Slug, tenant.Timezone, tenant.Locale, n, n)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, email, password_hash, full_name, role, is_active, created, updated) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		owner.ID, tenant.ID, owner.Email, owner.PasswordHash, owner.FullName, owner.Role, n, n)
	if err != nil {
		return err
	}

	tenant.Created = fromTS(n)
	tenant.Updated = fromTS(n)
	owner.Created = fromTS(n)
	owner.Updated = fromTS(n)

	return tx.Commit()
}

func (r *SQLiteRepo) FindUserByCredentials(ctx context.Context, tenantSlug, email string) (*models.User, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT u.id, u.tenant_id, t.slug, u.email, u.password_hash, u.full_name, u.role, u.is_active, u.created, u.updated
		 FROM users u JOIN tenants t ON t.id = u.tenant_id
		 WHERE t.slug = ? AND u.email = ?`, tenantSlug, email)

	var u models.User
	var active int64
	var created, updated int64
	if err := row.Scan(&u.ID, &u.TenantID, &u.TenantSlug, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &active, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	u.IsActive = active != 0
	u.Created = fromTS(created)
	u.Updated = fromTS(updated)

	return &u, nil
}
