package repository

import (
	"context"
	"database/sql"
	"fmt"

	"cityzen/models"
)

// AuthorityRepository reads authority reference data for routing
type AuthorityRepository struct {
	db *sql.DB
}

// NewAuthorityRepository creates a new authority repository
func NewAuthorityRepository(db *sql.DB) *AuthorityRepository {
	return &AuthorityRepository{db: db}
}

// AuthoritiesForCategory returns every authority servicing the category together
// with its service areas, ordered by authority id. Authorities without areas are
// returned with an empty Areas slice.
func (r *AuthorityRepository) AuthoritiesForCategory(ctx context.Context, categoryID int64) ([]models.AuthorityCompany, error) {
	query := `
		SELECT ac.id, ac.name, ac.description,
		       sa.id, sa.name, sa.latitude, sa.longitude, sa.radius_km
		FROM authority_companies ac
		JOIN authority_categories cat ON cat.authority_id = ac.id AND cat.category_id = ?
		LEFT JOIN service_areas sa ON sa.authority_id = ac.id
		ORDER BY ac.id, sa.id
	`
	rows, err := r.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorities for category %d: %w", categoryID, err)
	}
	defer rows.Close()

	var out []models.AuthorityCompany
	for rows.Next() {
		var (
			id                 int64
			name, description  string
			areaID             sql.NullInt64
			areaName           sql.NullString
			lat, lon, radiusKm sql.NullFloat64
		)
		if err := rows.Scan(&id, &name, &description, &areaID, &areaName, &lat, &lon, &radiusKm); err != nil {
			return nil, fmt.Errorf("failed to scan authority row: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, models.AuthorityCompany{ID: id, Name: name, Description: description, CategoryIDs: []int64{categoryID}})
		}
		if areaID.Valid {
			a := &out[len(out)-1]
			a.Areas = append(a.Areas, models.ServiceArea{
				ID:          areaID.Int64,
				AuthorityID: id,
				Name:        areaName.String,
				Latitude:    lat.Float64,
				Longitude:   lon.Float64,
				RadiusKm:    radiusKm.Float64,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read authority rows: %w", err)
	}
	return out, nil
}

// CountAuthoritiesForCategory counts how many of the given authorities service the category.
func (t *sqlTx) CountAuthoritiesForCategory(ctx context.Context, categoryID int64, authorityIDs []int64) (int, error) {
	if len(authorityIDs) == 0 {
		return 0, nil
	}
	args := append([]any{categoryID}, int64Args(authorityIDs)...)
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT authority_id) FROM authority_categories WHERE category_id = ? AND authority_id IN (`+placeholders(len(authorityIDs))+`)`,
		args...,
	).Scan(&n)
	if err != nil {
		return 0, dbErr("check chosen authorities", err)
	}
	return n, nil
}

// IsAssigned reports whether the authority was chosen for the complaint.
func (t *sqlTx) IsAssigned(ctx context.Context, complaintID, authorityID int64) (bool, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM complaint_assignments WHERE complaint_id = ? AND authority_id = ?`,
		complaintID, authorityID,
	).Scan(&n)
	if err != nil {
		return false, dbErr("check assignment", err)
	}
	return n > 0, nil
}
