package provider

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo stores utility provider configurations.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const providerColumns = `id, cluster_id, name, service_type, code, api_provider, active,
supports_validation, min_amount_minor, max_amount_minor`

func (r *PostgresRepo) Create(ctx context.Context, p UtilityProvider) error {
	const q = `
INSERT INTO utility_providers (` + providerColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err := r.db.ExecContext(ctx, q,
		p.ID, p.ClusterID, p.Name, p.ServiceType, p.Code, p.APIProvider, p.Active,
		p.SupportsValidation, p.MinAmountMinor, p.MaxAmountMinor,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, clusterID, providerID string) (UtilityProvider, error) {
	const q = `
SELECT ` + providerColumns + `
FROM utility_providers
WHERE cluster_id = $1 AND id = $2
`
	var p UtilityProvider
	err := r.db.QueryRowContext(ctx, q, clusterID, providerID).Scan(
		&p.ID, &p.ClusterID, &p.Name, &p.ServiceType, &p.Code, &p.APIProvider, &p.Active,
		&p.SupportsValidation, &p.MinAmountMinor, &p.MaxAmountMinor,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UtilityProvider{}, ErrNotFound
		}
		return UtilityProvider{}, err
	}
	return p, nil
}

func (r *PostgresRepo) ListActive(ctx context.Context, clusterID, serviceType string) ([]UtilityProvider, error) {
	q := `
SELECT ` + providerColumns + `
FROM utility_providers
WHERE cluster_id = $1 AND active = TRUE
`
	args := []any{clusterID}
	if serviceType != "" {
		q += ` AND service_type = $2`
		args = append(args, serviceType)
	}
	q += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UtilityProvider
	for rows.Next() {
		var p UtilityProvider
		if err := rows.Scan(
			&p.ID, &p.ClusterID, &p.Name, &p.ServiceType, &p.Code, &p.APIProvider, &p.Active,
			&p.SupportsValidation, &p.MinAmountMinor, &p.MaxAmountMinor,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
