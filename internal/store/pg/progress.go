package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/ids"
	"beaconhealth.org/internal/progress"
)

const progressCols = `id, patient_id, app_id, percent, updated_at`

func scanProgress(row rowScanner) (progress.Record, error) {
	var r progress.Record
	err := row.Scan(&r.ID, &r.PatientID, &r.AppID, &r.Percent, &r.UpdatedAt)
	return r, err
}

// UpsertProgress keeps one row per (patient, app); an unchanged percent
// leaves updated_at untouched so repeated calls are no-ops.
func (s *Store) UpsertProgress(ctx context.Context, patientID, appRef string, percent int) (progress.Record, error) {
	patientID = strings.TrimSpace(patientID)
	if err := progress.CheckInput(patientID, percent); err != nil {
		return progress.Record{}, err
	}
	var out progress.Record
	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		app, err := s.resolveApp(ctx, tx, appRef)
		if err != nil {
			return err
		}
		if s.requirePrescription {
			ok, err := s.hasPrescription(ctx, tx, patientID, app.ID)
			if err != nil {
				return err
			}
			if !ok {
				return progress.ErrNoRelationship(patientID, app.ID)
			}
		}
		now := s.clock.Now()
		rec, err := scanProgress(tx.QueryRowContext(ctx, `
			insert into progress (`+progressCols+`)
			values ($1,$2,$3,$4,$5)
			on conflict (patient_id, app_id) do update
			set percent = excluded.percent,
			    updated_at = case when progress.percent = excluded.percent
			                      then progress.updated_at else excluded.updated_at end
			returning `+progressCols+`
		`, ids.NewAt(now), patientID, app.ID, percent, now))
		if err != nil {
			return mapWriteError("upsert progress", err)
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *Store) GetProgress(ctx context.Context, patientID, appRef string) (progress.Record, error) {
	app, err := s.ResolveApp(ctx, appRef)
	if err != nil {
		return progress.Record{}, err
	}
	rec, err := scanProgress(s.db.QueryRowContext(ctx, `
		select `+progressCols+` from progress where patient_id=$1 and app_id=$2
	`, strings.TrimSpace(patientID), app.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return progress.Record{}, apperr.NotFound("progress for app", app.ID)
	}
	if err != nil {
		return progress.Record{}, fmt.Errorf("get progress: %w", err)
	}
	return rec, nil
}

func (s *Store) ListProgress(ctx context.Context, patientID string) ([]progress.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+progressCols+` from progress where patient_id=$1 order by id asc
	`, strings.TrimSpace(patientID))
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	res := []progress.Record{}
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
