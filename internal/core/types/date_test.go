package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_AddDaysAndCompare(t *testing.T) {
	d := NewDate(2026, time.February, 27)

	assert.Equal(t, "2026-03-01", d.AddDays(2).String())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.True(t, d.Equal(MustParseDate("2026-02-27")))
	assert.Equal(t, 7, d.DaysUntil(d.AddDays(7)))
}

func TestDateOf_DropsTimeOfDay(t *testing.T) {
	ts := time.Date(2026, time.October, 19, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, NewDate(2026, time.October, 19), DateOf(ts))
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		When Date  `json:"when"`
		Next *Date `json:"next"`
	}

	in := payload{When: NewDate(2026, time.January, 5)}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"when":"2026-01-05","next":null}`, string(data))

	var out payload
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.When.Equal(out.When))
	assert.Nil(t, out.Next)

	assert.Error(t, json.Unmarshal([]byte(`{"when":"05/01/2026"}`), &out))
}

func TestDate_Scan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-03-04", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
}
