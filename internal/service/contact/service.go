package contact

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/attendsure/attendsure-api/internal/model"
	"github.com/attendsure/attendsure-api/internal/repository"
	apperrors "github.com/attendsure/attendsure-api/pkg/errors"
	"github.com/attendsure/attendsure-api/pkg/logger"
)

var requiredColumns = []string{
	"name",
	"gender",
	"phone",
	"dob",
	"appointment_date",
	"appointment_time",
	"doctor_name",
}

type Service struct {
	patients repository.PatientRepository
	logger   *logger.Logger
}

func NewService(patients repository.PatientRepository, logger *logger.Logger) *Service {
	return &Service{patients: patients, logger: logger}
}

func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	patient := &model.Patient{
		Name:            req.Name,
		Gender:          req.Gender,
		Phone:           req.Phone,
		DOB:             req.DOB,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		DoctorName:      req.DoctorName,
	}
	if err := s.patients.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	return patient, nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*model.Patient, error) {
	if limit <= 0 {
		limit = 100
	}
	patients, err := s.patients.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

// BulkCreate inserts upload rows one by one, collecting per-row errors
// instead of failing the batch. Row numbers are 1-based.
func (s *Service) BulkCreate(ctx context.Context, rows []model.ContactRow) (*model.UploadResult, error) {
	result := &model.UploadResult{Errors: []model.RowError{}}

	for idx, row := range rows {
		if strings.TrimSpace(row.Name) == "" || strings.TrimSpace(row.Phone) == "" {
			result.Errors = append(result.Errors, model.RowError{
				Row:   idx + 1,
				Error: "missing required fields: name, phone",
				Data:  row,
			})
			continue
		}

		patient := rowToPatient(row)
		if err := s.patients.Create(ctx, patient); err != nil {
			result.Errors = append(result.Errors, model.RowError{
				Row:   idx + 1,
				Error: err.Error(),
				Data:  row,
			})
			continue
		}
		result.Inserted++
	}

	s.logger.Info("contact upload processed", "inserted", result.Inserted, "errors", len(result.Errors))
	return result, nil
}

// ParseCSV reads an uploaded contact CSV, validating that every required
// column is present before any row is accepted.
func ParseCSV(r io.Reader) ([]model.ContactRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.BadRequest("failed to read CSV header", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, apperrors.BadRequest(
			fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")), nil)
	}

	var rows []model.ContactRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.BadRequest("failed to read CSV row", err)
		}

		field := func(name string) string {
			i := index[name]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		rows = append(rows, model.ContactRow{
			Name:            field("name"),
			Gender:          field("gender"),
			Phone:           field("phone"),
			DOB:             field("dob"),
			AppointmentDate: field("appointment_date"),
			AppointmentTime: field("appointment_time"),
			DoctorName:      field("doctor_name"),
		})
	}
	return rows, nil
}

func rowToPatient(row model.ContactRow) *model.Patient {
	return &model.Patient{
		Name:            strings.TrimSpace(row.Name),
		Gender:          optional(row.Gender),
		Phone:           strings.TrimSpace(row.Phone),
		DOB:             optional(row.DOB),
		AppointmentDate: optional(row.AppointmentDate),
		AppointmentTime: optional(row.AppointmentTime),
		DoctorName:      optional(row.DoctorName),
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
