package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/attendsure/attendsure-api/internal/model"
	"github.com/attendsure/attendsure-api/internal/repository"
)

type patientRepository struct {
	db *sqlx.DB
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (name, gender, phone, dob, appointment_date, appointment_time, doctor_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	patient.CreatedAt = time.Now().UTC()

	err := r.db.QueryRowxContext(ctx, query,
		patient.Name,
		patient.Gender,
		patient.Phone,
		patient.DOB,
		patient.AppointmentDate,
		patient.AppointmentTime,
		patient.DoctorName,
		patient.CreatedAt,
	).Scan(&patient.ID)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id int64) (*model.Patient, error) {
	query := `SELECT * FROM patients WHERE id = $1`
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) List(ctx context.Context, limit, offset int) ([]*model.Patient, error) {
	query := `SELECT * FROM patients ORDER BY id LIMIT $1 OFFSET $2`
	var patients []*model.Patient
	err := r.db.SelectContext(ctx, &patients, query, limit, offset)
	return patients, err
}
