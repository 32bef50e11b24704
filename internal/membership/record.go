package membership

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRecord is returned when a roster record cannot be stored.
var ErrInvalidRecord = errors.New("invalid roster record")

var birthDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	time.RFC3339,
}

// Record is a normalised roster entry ready to be upserted. Blank string
// fields and a nil BirthDate mean "not provided" and never overwrite
// stored values.
type Record struct {
	NationalID       string
	HolderNationalID string
	Name             string
	Email            string
	Phone            string
	BirthDate        *time.Time
	PostalCode       string
	Address          Address
}

// RawRecord is a roster entry as received, before normalisation.
type RawRecord struct {
	NationalID       string
	HolderNationalID string
	Name             string
	Email            string
	Phone            string
	BirthDate        string
	PostalCode       string
	Address          Address
}

// Normalize trims every field, reduces identifiers and postal codes to
// digits and parses the birth date. A blank natural key yields
// ErrInvalidRecord. An unparseable birth date is dropped; callers detect it
// with BirthDateDropped.
func (r RawRecord) Normalize() (Record, error) {
	rec := Record{
		NationalID:       Digits(r.NationalID),
		HolderNationalID: Digits(r.HolderNationalID),
		Name:             strings.TrimSpace(r.Name),
		Email:            strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:            strings.TrimSpace(r.Phone),
		PostalCode:       Digits(r.PostalCode),
		Address: Address{
			Street:     strings.TrimSpace(r.Address.Street),
			Number:     strings.TrimSpace(r.Address.Number),
			Complement: strings.TrimSpace(r.Address.Complement),
			District:   strings.TrimSpace(r.Address.District),
			City:       strings.TrimSpace(r.Address.City),
			State:      strings.ToUpper(strings.TrimSpace(r.Address.State)),
		},
	}

	if rec.NationalID == "" {
		return Record{}, fmt.Errorf("%w: missing national id", ErrInvalidRecord)
	}

	if birthDate, err := ParseBirthDate(r.BirthDate); err == nil {
		rec.BirthDate = birthDate
	}

	return rec, nil
}

// BirthDateDropped reports whether r carried a birth date that rec could
// not keep.
func (r RawRecord) BirthDateDropped(rec Record) bool {
	return rec.BirthDate == nil && strings.TrimSpace(r.BirthDate) != ""
}

// ParseBirthDate parses a date in one of the accepted layouts. A blank
// input returns nil without error.
func ParseBirthDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: unrecognised birth date %q", ErrInvalidRecord, s)
}

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// Merge applies the non-blank fields of rec over m, assigns the member to
// tenantID and marks it active and remotely sourced. It is the in-process
// form of the store's upsert rule.
func (m *Member) Merge(tenantID string, rec Record) {
	m.TenantID = tenantID
	m.Status = StatusActive
	m.RemotelySourced = true
	if m.NationalID == "" {
		m.NationalID = rec.NationalID
	}

	setIfPresent(&m.HolderNationalID, rec.HolderNationalID)
	setIfPresent(&m.Name, rec.Name)
	setIfPresent(&m.Email, rec.Email)
	setIfPresent(&m.Phone, rec.Phone)
	setIfPresent(&m.PostalCode, rec.PostalCode)
	setIfPresent(&m.Address.Street, rec.Address.Street)
	setIfPresent(&m.Address.Number, rec.Address.Number)
	setIfPresent(&m.Address.Complement, rec.Address.Complement)
	setIfPresent(&m.Address.District, rec.Address.District)
	setIfPresent(&m.Address.City, rec.Address.City)
	setIfPresent(&m.Address.State, rec.Address.State)
	if rec.BirthDate != nil {
		d := *rec.BirthDate
		m.BirthDate = &d
	}
}

func setIfPresent(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}
