package database

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDriver(t *testing.T) {
	tests := []struct {
		url  string
		want Driver
	}{
		{"", DriverSQLite},
		{"postgres://u:p@localhost:5432/meridian", DriverPostgres},
		{"postgresql://localhost/meridian", DriverPostgres},
		{"sqlite:///tmp/meridian.db", DriverSQLite},
		{"file:/tmp/x", DriverSQLite},
		{"/var/lib/meridian.sqlite3", DriverSQLite},
		{"host=localhost dbname=meridian", DriverPostgres},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDriver(tt.url))
		})
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM bookings WHERE account_id = ? AND start_at < ? AND note <> '?'`

	assert.Equal(t, q, Rebind(DriverSQLite, q))
	assert.Equal(t,
		`SELECT * FROM bookings WHERE account_id = $1 AND start_at < $2 AND note <> '?'`,
		Rebind(DriverPostgres, q))
}

func TestTimeFormat_SortsLexically(t *testing.T) {
	a := time.Date(2026, 3, 2, 9, 0, 0, 5, time.UTC)
	b := a.Add(time.Nanosecond)

	assert.Less(t, FormatTime(a), FormatTime(b))

	parsed, err := ParseTime(FormatTime(a))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(a))

	none, err := ParseNullTime(NullTime(nil))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("disk I/O error")))
	assert.True(t, IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: bookings.session_id (2067)")))
}
