package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/ids"
)

const appCols = `id, name, category, description, developer,
	clinical_score, ux_score, security_score, integration_score, overall_score,
	regulatory_status, ce_status, compliant, price_model,
	certification_notes, studies_notes, integration_notes, created_at, updated_at`

func scanApp(row rowScanner) (catalog.App, error) {
	var a catalog.App
	err := row.Scan(&a.ID, &a.Name, &a.Category, &a.Description, &a.Developer,
		&a.ClinicalScore, &a.UXScore, &a.SecurityScore, &a.IntegrationScore, &a.OverallScore,
		&a.RegulatoryStatus, &a.CEStatus, &a.Compliant, &a.PriceModel,
		&a.CertificationNotes, &a.StudiesNotes, &a.IntegrationNotes, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) CreateApp(ctx context.Context, in catalog.NewApp) (catalog.App, error) {
	if err := in.Validate(); err != nil {
		return catalog.App{}, err
	}
	now := s.clock.Now()
	a := in.Build(ids.NewAt(now), now)

	_, err := s.db.ExecContext(ctx, `
		insert into apps (`+appCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, a.ID, a.Name, a.Category, a.Description, a.Developer,
		a.ClinicalScore, a.UXScore, a.SecurityScore, a.IntegrationScore, a.OverallScore,
		a.RegulatoryStatus, a.CEStatus, a.Compliant, a.PriceModel,
		a.CertificationNotes, a.StudiesNotes, a.IntegrationNotes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return catalog.App{}, apperr.Conflict("app name %q already exists", a.Name)
		}
		return catalog.App{}, mapWriteError("insert app", err)
	}
	return a, nil
}

func (s *Store) UpdateApp(ctx context.Context, id string, patch catalog.AppPatch) (catalog.App, error) {
	var out catalog.App
	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		cur, err := scanApp(tx.QueryRowContext(ctx, `select `+appCols+` from apps where id=$1 for update`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("app", id)
		}
		if err != nil {
			return fmt.Errorf("load app: %w", err)
		}
		if err := patch.Apply(&cur, s.clock.Now()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update apps set
				clinical_score=$2, ux_score=$3, security_score=$4, integration_score=$5, overall_score=$6,
				regulatory_status=$7, ce_status=$8, compliant=$9,
				certification_notes=$10, studies_notes=$11, integration_notes=$12, updated_at=$13
			where id=$1
		`, cur.ID, cur.ClinicalScore, cur.UXScore, cur.SecurityScore, cur.IntegrationScore, cur.OverallScore,
			cur.RegulatoryStatus, cur.CEStatus, cur.Compliant,
			cur.CertificationNotes, cur.StudiesNotes, cur.IntegrationNotes, cur.UpdatedAt); err != nil {
			return mapWriteError("update app", err)
		}
		out = cur
		return nil
	})
	return out, err
}

func (s *Store) GetApp(ctx context.Context, id string) (catalog.App, error) {
	return s.getApp(ctx, s.db, id)
}

func (s *Store) getApp(ctx context.Context, q queryer, id string) (catalog.App, error) {
	a, err := scanApp(q.QueryRowContext(ctx, `select `+appCols+` from apps where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.App{}, apperr.NotFound("app", id)
	}
	if err != nil {
		return catalog.App{}, fmt.Errorf("get app: %w", err)
	}
	return a, nil
}

func (s *Store) ResolveApp(ctx context.Context, ref string) (catalog.App, error) {
	return s.resolveApp(ctx, s.db, ref)
}

// resolveApp matches ref as an id first, then as a case-insensitive name.
func (s *Store) resolveApp(ctx context.Context, q queryer, ref string) (catalog.App, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return catalog.App{}, apperr.Invalid("app", "reference is required")
	}
	a, err := scanApp(q.QueryRowContext(ctx, `
		select `+appCols+` from apps
		where id=$1 or lower(name)=lower($1)
		order by (id=$1) desc
		limit 1
	`, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.App{}, apperr.NotFound("app", ref)
	}
	if err != nil {
		return catalog.App{}, fmt.Errorf("resolve app: %w", err)
	}
	return a, nil
}

func (s *Store) ListApps(ctx context.Context, f catalog.Filter) ([]catalog.App, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, "lower(category)=lower($"+strconv.Itoa(len(args))+")")
	}
	if f.RegulatoryStatus != "" {
		args = append(args, f.RegulatoryStatus)
		where = append(where, "lower(regulatory_status)=lower($"+strconv.Itoa(len(args))+")")
	}
	query := `select ` + appCols + ` from apps`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	switch f.Sort {
	case catalog.SortByScore:
		query += " order by overall_score desc, created_at asc, id asc"
	case catalog.SortByName:
		query += " order by lower(name) asc"
	default:
		query += " order by created_at asc, id asc"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	res := []catalog.App{}
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) Stats(ctx context.Context) (catalog.Stats, error) {
	apps, err := s.ListApps(ctx, catalog.Filter{})
	if err != nil {
		return catalog.Stats{}, err
	}
	return catalog.Summarize(apps), nil
}
