package models

import "time"

// Reconcilable field names. These are the keys used by conflicts, AI suggestions,
// human overrides and activity diffs.
const (
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldDateOfBirth = "date_of_birth"
	FieldSSN         = "ssn"
	FieldPhoneNumber = "phone_number"
	FieldEmail       = "email"
	FieldStreet      = "street"
	FieldNumber      = "number"
	FieldCity        = "city"
	FieldRegion      = "region"
	FieldGender      = "gender"
)

// ReconcilableFields is the fixed order fields are resolved and diffed in
var ReconcilableFields = []string{
	FieldFirstName,
	FieldLastName,
	FieldDateOfBirth,
	FieldSSN,
	FieldPhoneNumber,
	FieldEmail,
	FieldStreet,
	FieldNumber,
	FieldCity,
	FieldRegion,
	FieldGender,
}

// PersonRecord is a single registry entry. A merge rewrites the keeper's fields
// in place and retires the duplicates by clearing Active and setting MergedInto.
type PersonRecord struct {
	ID          string     `json:"id" db:"id" validate:"required"`
	FirstName   string     `json:"first_name" db:"first_name"`
	LastName    string     `json:"last_name" db:"last_name"`
	DateOfBirth string     `json:"date_of_birth" db:"date_of_birth"`
	SSN         string     `json:"ssn" db:"ssn"`
	PhoneNumber string     `json:"phone_number" db:"phone_number"`
	Email       string     `json:"email" db:"email"`
	Street      string     `json:"street" db:"street"`
	Number      string     `json:"number" db:"number"`
	City        string     `json:"city" db:"city"`
	Region      string     `json:"region" db:"region"`
	Gender      string     `json:"gender" db:"gender"`
	Active      bool       `json:"active" db:"active"`
	MergedInto  *string    `json:"merged_into,omitempty" db:"merged_into"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Get returns the value of a reconcilable field, or "" for unknown names
func (p PersonRecord) Get(field string) string {
	switch field {
	case FieldFirstName:
		return p.FirstName
	case FieldLastName:
		return p.LastName
	case FieldDateOfBirth:
		return p.DateOfBirth
	case FieldSSN:
		return p.SSN
	case FieldPhoneNumber:
		return p.PhoneNumber
	case FieldEmail:
		return p.Email
	case FieldStreet:
		return p.Street
	case FieldNumber:
		return p.Number
	case FieldCity:
		return p.City
	case FieldRegion:
		return p.Region
	case FieldGender:
		return p.Gender
	}
	return ""
}

// With returns a copy of the record with field set to value. Unknown fields are ignored.
func (p PersonRecord) With(field, value string) PersonRecord {
	switch field {
	case FieldFirstName:
		p.FirstName = value
	case FieldLastName:
		p.LastName = value
	case FieldDateOfBirth:
		p.DateOfBirth = value
	case FieldSSN:
		p.SSN = value
	case FieldPhoneNumber:
		p.PhoneNumber = value
	case FieldEmail:
		p.Email = value
	case FieldStreet:
		p.Street = value
	case FieldNumber:
		p.Number = value
	case FieldCity:
		p.City = value
	case FieldRegion:
		p.Region = value
	case FieldGender:
		p.Gender = value
	}
	return p
}

// Fields returns the reconcilable fields as a map
func (p PersonRecord) Fields() map[string]string {
	out := make(map[string]string, len(ReconcilableFields))
	for _, f := range ReconcilableFields {
		out[f] = p.Get(f)
	}
	return out
}

// IsReconcilable reports whether name is one of ReconcilableFields
func IsReconcilable(name string) bool {
	for _, f := range ReconcilableFields {
		if f == name {
			return true
		}
	}
	return false
}

// PoolFilter narrows the records returned by a record store
type PoolFilter struct {
	IDs            []string `json:"ids,omitempty" query:"ids"`
	LastName       string   `json:"last_name,omitempty" query:"last_name"`
	DateOfBirth    string   `json:"date_of_birth,omitempty" query:"date_of_birth"`
	IncludeRetired bool     `json:"include_retired,omitempty" query:"include_retired"`
	Limit          int      `json:"limit,omitempty" query:"limit"`
}
