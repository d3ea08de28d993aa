package model

import (
	"time"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Patient is a contact imported for appointment reminder calls. Rows are
// immutable after ingestion; the call pipeline only reads them.
type Patient struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Gender          *string   `db:"gender" json:"gender,omitempty"`
	Phone           string    `db:"phone" json:"phone"`
	DOB             *string   `db:"dob" json:"dob,omitempty"`
	AppointmentDate *string   `db:"appointment_date" json:"appointment_date,omitempty"`
	AppointmentTime *string   `db:"appointment_time" json:"appointment_time,omitempty"`
	DoctorName      *string   `db:"doctor_name" json:"doctor_name,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type CreatePatientRequest struct {
	Name            string  `json:"name" binding:"required"`
	Gender          *string `json:"gender" binding:"omitempty,oneof=male female other"`
	Phone           string  `json:"phone" binding:"required"`
	DOB             *string `json:"dob"`
	AppointmentDate *string `json:"appointment_date"`
	AppointmentTime *string `json:"appointment_time"`
	DoctorName      *string `json:"doctor_name"`
}

// ContactRow is one row of a CSV or JSON contact upload.
type ContactRow struct {
	Name            string `json:"name" csv:"name"`
	Gender          string `json:"gender" csv:"gender"`
	Phone           string `json:"phone" csv:"phone"`
	DOB             string `json:"dob" csv:"dob"`
	AppointmentDate string `json:"appointment_date" csv:"appointment_date"`
	AppointmentTime string `json:"appointment_time" csv:"appointment_time"`
	DoctorName      string `json:"doctor_name" csv:"doctor_name"`
}

// RowError reports a single rejected upload row without failing the batch.
type RowError struct {
	Row   int        `json:"row"`
	Error string     `json:"error"`
	Data  ContactRow `json:"data"`
}

type UploadResult struct {
	Inserted int        `json:"inserted"`
	Errors   []RowError `json:"errors"`
}
