package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTime_Scan(t *testing.T) {
	want := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		src  any
	}{
		{"time value", want.In(time.FixedZone("MSK", 3*3600))},
		{"fixed layout", want.Format(TimeLayout)},
		{"rfc3339", want.Format(time.RFC3339)},
		{"bytes", []byte(want.Format(TimeLayout))},
		{"sqlite default", "2026-02-03 13:00:00+03:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Time
			require.NoError(t, got.Scan(tt.src))
			assert.True(t, got.Valid)
			assert.True(t, want.Equal(got.Time))
			assert.Equal(t, time.UTC, got.Time.Location())
		})
	}
}

func TestTime_ScanNull(t *testing.T) {
	var got Time
	require.NoError(t, got.Scan(nil))
	assert.False(t, got.Valid)
	assert.Nil(t, got.Ptr())
}

func TestTime_ScanInvalid(t *testing.T) {
	var got Time
	assert.Error(t, got.Scan("yesterday"))
	assert.Error(t, got.Scan(42))
}

func TestTimeLayout_SortsChronologically(t *testing.T) {
	a := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	b := a.Add(500 * time.Millisecond)
	c := a.Add(time.Second)

	assert.Less(t, a.Format(TimeLayout), b.Format(TimeLayout))
	assert.Less(t, b.Format(TimeLayout), c.Format(TimeLayout))
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, NullTime(nil))
	now := time.Now()
	assert.Equal(t, now.UTC(), NullTime(&now))
	assert.Nil(t, NullString(""))
	assert.Equal(t, "x", NullString("x"))
}
