package pacing_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/autoapply-service/internal/pacing"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    pacing.TimeOfDay
		wantErr bool
	}{
		{in: "09:00", want: 9 * 3600},
		{in: "18:30", want: 18*3600 + 30*60},
		{in: " 07:05:09 ", want: 7*3600 + 5*60 + 9},
		{in: "00:00", want: 0},
		{in: "23:59:59", want: 24*3600 - 1},
		{in: "24:00", wantErr: true},
		{in: "9", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "aa:00", wantErr: true},
		{in: "-1:00", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := pacing.ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeOfDay_StringAndJSON(t *testing.T) {
	assert.Equal(t, "09:00", pacing.MustTimeOfDay("9:00").String())
	assert.Equal(t, "07:05:09", pacing.MustTimeOfDay("07:05:09").String())

	var cfg pacing.PaceConfig
	require.NoError(t, json.Unmarshal([]byte(`{"windowStart":"08:15","windowEnd":"17:45"}`), &cfg))
	assert.Equal(t, pacing.MustTimeOfDay("08:15"), cfg.WindowStart)

	b, err := json.Marshal(cfg.WindowEnd)
	require.NoError(t, err)
	assert.JSONEq(t, `"17:45"`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"windowStart":900}`), &cfg))
}

func TestTimeOfDay_On(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	day := time.Date(2026, 3, 2, 23, 10, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, loc), pacing.MustTimeOfDay("09:30").On(day))
}

func TestTimeOfDay_OnDSTDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	spring := time.Date(2026, 3, 8, 12, 0, 0, 0, ny)
	got := pacing.MustTimeOfDay("09:00").On(spring)
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC), got.UTC())

	fall := time.Date(2026, 11, 1, 12, 0, 0, 0, ny)
	got = pacing.MustTimeOfDay("18:00").On(fall)
	assert.Equal(t, 18, got.Hour())
	assert.Equal(t, time.Date(2026, 11, 1, 23, 0, 0, 0, time.UTC), got.UTC())
}

func TestCapacity(t *testing.T) {
	cfg := pacing.PaceConfig{
		WindowStart:     pacing.MustTimeOfDay("09:00"),
		WindowEnd:       pacing.MustTimeOfDay("09:02"),
		MinDelaySeconds: 60,
	}
	assert.Equal(t, 3, cfg.Capacity())

	cfg.MinDelaySeconds = 0
	assert.Equal(t, -1, cfg.Capacity())
}

func TestHasBoard_CaseInsensitive(t *testing.T) {
	cfg := pacing.PaceConfig{Boards: []string{" LinkedIn", "naukri"}}
	assert.True(t, cfg.HasBoard("linkedin"))
	assert.True(t, cfg.HasBoard("NAUKRI "))
	assert.False(t, cfg.HasBoard("glassdoor"))
}

func TestContainsRedFlag(t *testing.T) {
	flags := []string{"unpaid", " ", "MLM"}
	assert.True(t, pacing.ContainsRedFlag("Unpaid Intern", "Acme", flags))
	assert.True(t, pacing.ContainsRedFlag("Sales", "Global mlm Ltd", flags))
	assert.False(t, pacing.ContainsRedFlag("Go Engineer", "Acme", flags))
	assert.False(t, pacing.ContainsRedFlag("Unpaid", "Acme", nil))
}
