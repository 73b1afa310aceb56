package person

import (
	"database/sql"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

const personTable = "persons"

type PersonRow struct {
	ID          string         `db:"id"`
	FirstName   string         `db:"first_name"`
	LastName    string         `db:"last_name"`
	DateOfBirth string         `db:"date_of_birth"`
	SSN         string         `db:"ssn"`
	PhoneNumber string         `db:"phone_number"`
	Email       string         `db:"email"`
	Street      string         `db:"street"`
	Number      string         `db:"number"`
	City        string         `db:"city"`
	Region      string         `db:"region"`
	Gender      string         `db:"gender"`
	Active      bool           `db:"active"`
	MergedInto  sql.NullString `db:"merged_into"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
}

var personColumns = []string{
	"id", "first_name", "last_name", "date_of_birth", "ssn", "phone_number", "email",
	"street", "number", "city", "region", "gender", "active", "merged_into", "updated_at",
}

func FromPersonRecord(r models.PersonRecord) PersonRow {
	row := PersonRow{
		ID:          r.ID,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		DateOfBirth: r.DateOfBirth,
		SSN:         r.SSN,
		PhoneNumber: r.PhoneNumber,
		Email:       r.Email,
		Street:      r.Street,
		Number:      r.Number,
		City:        r.City,
		Region:      r.Region,
		Gender:      r.Gender,
		Active:      r.Active,
	}
	if r.MergedInto != nil {
		row.MergedInto = sql.NullString{String: *r.MergedInto, Valid: true}
	}
	if r.UpdatedAt != nil {
		row.UpdatedAt = sql.NullTime{Time: r.UpdatedAt.UTC(), Valid: true}
	}
	return row
}

func ToPersonRecord(row PersonRow) models.PersonRecord {
	r := models.PersonRecord{
		ID:          row.ID,
		FirstName:   row.FirstName,
		LastName:    row.LastName,
		DateOfBirth: row.DateOfBirth,
		SSN:         row.SSN,
		PhoneNumber: row.PhoneNumber,
		Email:       row.Email,
		Street:      row.Street,
		Number:      row.Number,
		City:        row.City,
		Region:      row.Region,
		Gender:      row.Gender,
		Active:      row.Active,
	}
	if row.MergedInto.Valid {
		m := row.MergedInto.String
		r.MergedInto = &m
	}
	if row.UpdatedAt.Valid {
		t := row.UpdatedAt.Time.UTC()
		r.UpdatedAt = &t
	}
	return r
}

func (row PersonRow) values() []any {
	return []any{
		row.ID, row.FirstName, row.LastName, row.DateOfBirth, row.SSN, row.PhoneNumber, row.Email,
		row.Street, row.Number, row.City, row.Region, row.Gender, row.Active, row.MergedInto, row.UpdatedAt,
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
