package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/ids"
	"beaconhealth.org/internal/prescription"
)

const prescriptionCols = `p.id, p.app_id, p.provider_id, p.patient_id, p.status, p.notes,
	p.prescribed_at, p.next_review_at, p.adherence_percent, p.updated_at`

const viewCols = prescriptionCols + `,
	a.name, a.category, a.developer, a.description, a.overall_score, a.regulatory_status`

func scanPrescription(row rowScanner, extra ...any) (prescription.Prescription, error) {
	var (
		p         prescription.Prescription
		status    string
		review    sql.NullTime
		adherence sql.NullInt32
	)
	dest := []any{&p.ID, &p.AppID, &p.ProviderID, &p.PatientID, &status, &p.Notes,
		&p.PrescribedAt, &review, &adherence, &p.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return prescription.Prescription{}, err
	}
	p.Status = prescription.Status(status)
	if review.Valid {
		t := review.Time.UTC()
		p.NextReviewAt = &t
	}
	if adherence.Valid {
		v := int(adherence.Int32)
		p.AdherencePercent = &v
	}
	return p, nil
}

func scanView(row rowScanner) (prescription.View, error) {
	var v prescription.View
	p, err := scanPrescription(row, &v.App.Name, &v.App.Category, &v.App.Developer,
		&v.App.Description, &v.App.OverallScore, &v.App.RegulatoryStatus)
	if err != nil {
		return prescription.View{}, err
	}
	v.Prescription = p
	return v, nil
}

func (s *Store) Prescribe(ctx context.Context, req prescription.Request) (prescription.Prescription, error) {
	req, err := req.Normalize()
	if err != nil {
		return prescription.Prescription{}, err
	}
	var out prescription.Prescription
	err = s.inTx(ctx, nil, func(tx *sql.Tx) error {
		app, err := s.resolveApp(ctx, tx, req.AppRef)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		p := prescription.Prescription{
			ID:           ids.NewAt(now),
			AppID:        app.ID,
			ProviderID:   req.ProviderID,
			PatientID:    req.PatientID,
			Status:       req.InitialStatus,
			Notes:        req.Notes,
			PrescribedAt: now,
			UpdatedAt:    now,
		}
		if req.NextReviewAt != nil {
			t := req.NextReviewAt.UTC()
			p.NextReviewAt = &t
		}
		if _, err := tx.ExecContext(ctx, `
			insert into prescriptions (id, app_id, provider_id, patient_id, status, notes, prescribed_at, next_review_at, adherence_percent, updated_at)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, p.ID, p.AppID, p.ProviderID, p.PatientID, string(p.Status), p.Notes,
			p.PrescribedAt, nullTime(p.NextReviewAt), nullInt(p.AdherencePercent), p.UpdatedAt); err != nil {
			return mapWriteError("insert prescription", err)
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Store) SetStatus(ctx context.Context, id string, next prescription.Status) (prescription.Prescription, error) {
	p, _, err := s.Apply(ctx, id, prescription.Change{Status: &next})
	return p, err
}

func (s *Store) RecordAdherence(ctx context.Context, id string, percent int) (prescription.Prescription, error) {
	p, _, err := s.Apply(ctx, id, prescription.Change{AdherencePercent: &percent})
	return p, err
}

func (s *Store) ScheduleReview(ctx context.Context, id string, at time.Time) (prescription.Prescription, error) {
	p, _, err := s.Apply(ctx, id, prescription.Change{NextReviewAt: &at})
	return p, err
}

// Apply checks and writes c under the row lock taken by mutatePrescription.
func (s *Store) Apply(ctx context.Context, id string, c prescription.Change) (prescription.Prescription, prescription.Status, error) {
	var prev prescription.Status
	p, err := s.mutatePrescription(ctx, id, func(p *prescription.Prescription) error {
		prev = p.Status
		return c.ApplyTo(p)
	})
	if err != nil {
		return prescription.Prescription{}, "", err
	}
	return p, prev, nil
}

// mutatePrescription locks the row so concurrent status changes serialise.
func (s *Store) mutatePrescription(ctx context.Context, id string, fn func(*prescription.Prescription) error) (prescription.Prescription, error) {
	var out prescription.Prescription
	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		p, err := scanPrescription(tx.QueryRowContext(ctx, `
			select `+prescriptionCols+` from prescriptions p where p.id=$1 for update
		`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("prescription", id)
		}
		if err != nil {
			return fmt.Errorf("load prescription: %w", err)
		}
		if err := fn(&p); err != nil {
			return err
		}
		p.UpdatedAt = s.clock.Now()
		if _, err := tx.ExecContext(ctx, `
			update prescriptions
			set status=$2, next_review_at=$3, adherence_percent=$4, updated_at=$5
			where id=$1
		`, p.ID, string(p.Status), nullTime(p.NextReviewAt), nullInt(p.AdherencePercent), p.UpdatedAt); err != nil {
			return mapWriteError("update prescription", err)
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Store) GetPrescription(ctx context.Context, id string) (prescription.View, error) {
	v, err := scanView(s.db.QueryRowContext(ctx, `
		select `+viewCols+`
		from prescriptions p join apps a on a.id = p.app_id
		where p.id=$1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return prescription.View{}, apperr.NotFound("prescription", id)
	}
	if err != nil {
		return prescription.View{}, fmt.Errorf("get prescription: %w", err)
	}
	return v, nil
}

func (s *Store) ListForPatient(ctx context.Context, patientID string) ([]prescription.View, error) {
	return s.listViews(ctx, "p.patient_id", patientID)
}

func (s *Store) ListForProvider(ctx context.Context, providerID string) ([]prescription.View, error) {
	return s.listViews(ctx, "p.provider_id", providerID)
}

// column is one of two fixed identifiers, never caller input.
func (s *Store) listViews(ctx context.Context, column, value string) ([]prescription.View, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+viewCols+`
		from prescriptions p join apps a on a.id = p.app_id
		where `+column+`=$1
		order by p.prescribed_at asc, p.id asc
	`, value)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	res := []prescription.View{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) HasPrescription(ctx context.Context, patientID, appID string) (bool, error) {
	return s.hasPrescription(ctx, s.db, patientID, appID)
}

func (s *Store) hasPrescription(ctx context.Context, q queryer, patientID, appID string) (bool, error) {
	var ok bool
	err := q.QueryRowContext(ctx, `
		select exists(select 1 from prescriptions where patient_id=$1 and app_id=$2)
	`, patientID, appID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check prescription: %w", err)
	}
	return ok, nil
}
