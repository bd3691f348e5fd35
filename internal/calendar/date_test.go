package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	d, err := Parse("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", d.String())

	d, err = Parse("2024-01-15T23:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", d.String())

	d, err = Parse("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = Parse("15/01/2024")
	assert.Error(t, err)
}

func TestParseKeepsTheTimestampsOwnDay(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-15T23:00:00-05:00", "2024-01-15"},
		{"2024-01-15T00:30:00+09:00", "2024-01-15"},
		{"2024-01-31T22:00:00-03:00", "2024-01-31"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestAddDaysCrossesMonth(t *testing.T) {
	assert.Equal(t, "2024-02-15", MustParse("2024-02-01").AddDays(14).String())
	assert.Equal(t, "2024-03-07", MustParse("2024-02-22").AddDays(14).String())
}

func TestCeilDays(t *testing.T) {
	due := MustParse("2024-01-15").Time()

	assert.Equal(t, 5, CeilDays(due, MustParse("2024-01-20").Time()))
	assert.Equal(t, 0, CeilDays(due, due))
	assert.Equal(t, -3, CeilDays(due, MustParse("2024-01-12").Time()))
	assert.Equal(t, 1, CeilDays(due, due.Add(time.Hour)))
}

func TestCodecs(t *testing.T) {
	type record struct {
		Due    Date  `json:"dueDate" yaml:"dueDate"`
		Return *Date `json:"returnDate" yaml:"returnDate"`
	}

	js, err := json.Marshal(record{Due: MustParse("2024-01-15")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"dueDate":"2024-01-15","returnDate":null}`, string(js))

	var fromJSON record
	require.NoError(t, json.Unmarshal([]byte(`{"dueDate":"2024-01-15","returnDate":null}`), &fromJSON))
	assert.True(t, fromJSON.Due.Equal(MustParse("2024-01-15")))
	assert.Nil(t, fromJSON.Return)

	var fromYAML record
	require.NoError(t, yaml.Unmarshal([]byte("dueDate: \"2024-02-01\"\nreturnDate: \"2024-02-03\"\n"), &fromYAML))
	assert.Equal(t, "2024-02-01", fromYAML.Due.String())
	require.NotNil(t, fromYAML.Return)
	assert.Equal(t, "2024-02-03", fromYAML.Return.String())
}
