package membership

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenant_IsEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		tenant Tenant
		want   bool
	}{
		{
			name:   "active remote tenant with token",
			tenant: Tenant{Status: StatusActive, RemotelySourced: true, RemoteToken: "tok"},
			want:   true,
		},
		{
			name:   "not remotely sourced",
			tenant: Tenant{Status: StatusActive, RemotelySourced: false, RemoteToken: "tok"},
			want:   false,
		},
		{
			name:   "inactive",
			tenant: Tenant{Status: StatusInactive, RemotelySourced: true, RemoteToken: "tok"},
			want:   false,
		},
		{
			name:   "empty token",
			tenant: Tenant{Status: StatusActive, RemotelySourced: true},
			want:   false,
		},
		{
			name:   "whitespace token",
			tenant: Tenant{Status: StatusActive, RemotelySourced: true, RemoteToken: "   "},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.tenant.IsEligible())
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusActive, StatusInactive, StatusDeleted, StatusDefaulting} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("PENDING").Valid())
	assert.False(t, Status("").Valid())
}

func TestRawRecord_Normalize(t *testing.T) {
	t.Parallel()

	t.Run("normalises identifiers and text", func(t *testing.T) {
		t.Parallel()

		rec, err := RawRecord{
			NationalID:       "123.456.789-09",
			HolderNationalID: " 987.654.321-00 ",
			Name:             "  Maria Souza ",
			Email:            " Maria@Example.COM ",
			BirthDate:        "21/04/1990",
			PostalCode:       "01310-100",
			Address:          Address{City: " São Paulo ", State: "sp"},
		}.Normalize()
		require.NoError(t, err)

		assert.Equal(t, "12345678909", rec.NationalID)
		assert.Equal(t, "98765432100", rec.HolderNationalID)
		assert.Equal(t, "Maria Souza", rec.Name)
		assert.Equal(t, "maria@example.com", rec.Email)
		assert.Equal(t, "01310100", rec.PostalCode)
		assert.Equal(t, "São Paulo", rec.Address.City)
		assert.Equal(t, "SP", rec.Address.State)
		require.NotNil(t, rec.BirthDate)
		assert.Equal(t, time.Date(1990, time.April, 21, 0, 0, 0, 0, time.UTC), *rec.BirthDate)
	})

	t.Run("blank birth date stays absent", func(t *testing.T) {
		t.Parallel()

		rec, err := RawRecord{NationalID: "11122233344", BirthDate: "  "}.Normalize()
		require.NoError(t, err)
		assert.Nil(t, rec.BirthDate)
	})

	t.Run("missing national id", func(t *testing.T) {
		t.Parallel()

		_, err := RawRecord{NationalID: "--", Name: "No Key"}.Normalize()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidRecord))
	})

	t.Run("unparseable birth date is dropped", func(t *testing.T) {
		t.Parallel()

		raw := RawRecord{NationalID: "11122233344", Name: "Ana", BirthDate: "yesterday"}
		rec, err := raw.Normalize()
		require.NoError(t, err)
		assert.Equal(t, "11122233344", rec.NationalID)
		assert.Equal(t, "Ana", rec.Name)
		assert.Nil(t, rec.BirthDate)
		assert.True(t, raw.BirthDateDropped(rec))
	})

	t.Run("parsed birth date is not reported as dropped", func(t *testing.T) {
		t.Parallel()

		for _, in := range []string{"", "1990-04-21"} {
			raw := RawRecord{NationalID: "11122233344", BirthDate: in}
			rec, err := raw.Normalize()
			require.NoError(t, err)
			assert.False(t, raw.BirthDateDropped(rec), in)
		}
	})
}

func TestDigits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "12345678909", Digits("123.456.789-09"))
	assert.Equal(t, "", Digits("\u0661\u0662\u0663"))
	assert.Equal(t, "12", Digits("1\uff12\uff132"))
}

func TestParseBirthDate(t *testing.T) {
	t.Parallel()

	want := time.Date(1985, time.December, 3, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"1985-12-03", "1985-12-03 00:00:00", "03/12/1985", "1985-12-03T15:04:05-03:00"} {
		got, err := ParseBirthDate(in)
		require.NoError(t, err, in)
		require.NotNil(t, got, in)
		assert.Equal(t, want, *got, in)
	}
}

func TestMember_Merge(t *testing.T) {
	t.Parallel()

	known := time.Date(1970, time.January, 2, 0, 0, 0, 0, time.UTC)
	newer := time.Date(1971, time.February, 3, 0, 0, 0, 0, time.UTC)

	t.Run("blank fields do not overwrite", func(t *testing.T) {
		t.Parallel()

		m := Member{
			TenantID:   "t-old",
			NationalID: "1",
			Name:       "Old Name",
			Email:      "old@example.com",
			BirthDate:  &known,
			PostalCode: "11111111",
			Status:     StatusInactive,
		}
		m.Merge("t-new", Record{NationalID: "1", Name: "New Name"})

		assert.Equal(t, "t-new", m.TenantID)
		assert.Equal(t, StatusActive, m.Status)
		assert.True(t, m.RemotelySourced)
		assert.Equal(t, "New Name", m.Name)
		assert.Equal(t, "old@example.com", m.Email)
		assert.Equal(t, "11111111", m.PostalCode)
		require.NotNil(t, m.BirthDate)
		assert.Equal(t, known, *m.BirthDate)
	})

	t.Run("present birth date overwrites", func(t *testing.T) {
		t.Parallel()

		m := Member{NationalID: "1", BirthDate: &known}
		m.Merge("t", Record{NationalID: "1", BirthDate: &newer})

		require.NotNil(t, m.BirthDate)
		assert.Equal(t, newer, *m.BirthDate)
	})

	t.Run("new member takes the record key", func(t *testing.T) {
		t.Parallel()

		var m Member
		m.Merge("t", Record{NationalID: "42"})
		assert.Equal(t, "42", m.NationalID)
	})
}
