package config

import (
	"bytes"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() Record {
	return Record{
		"name":                   "washer",
		"powerStateId":           "fritzdect.0.DECT_116300369609.power",
		"switchStateId":          "fritzdect.0.DECT_116300369609.state",
		"intervalSeconds":        10,
		"startThresholdWatt":     30,
		"stopThresholdWatt":      5,
		"startCounterLimit":      2,
		"stopCounterLimit":       2,
		"autoOffCounterLimit":    2,
		"switchOffAfterFinished": true,
		"resetDelayMinutes":      0,
	}
}

func messages(problems []Problem) []string {
	out := make([]string, 0, len(problems))
	for _, p := range problems {
		out = append(out, p.Message)
	}
	return out
}

func TestCheckValid(t *testing.T) {
	assert.Empty(t, Check(validRecord()))
}

func TestCheckNil(t *testing.T) {
	problems := Check(nil)
	require.Len(t, problems, 1)
	assert.Equal(t, "Config object is missing entirely.", problems[0].Message)
}

func TestCheckThresholdOrder(t *testing.T) {
	rec := Record{
		"name":                   "x",
		"powerStateId":           "p",
		"intervalSeconds":        10,
		"startThresholdWatt":     5,
		"stopThresholdWatt":      10,
		"startCounterLimit":      1,
		"stopCounterLimit":       1,
		"autoOffCounterLimit":    0,
		"switchOffAfterFinished": false,
		"resetDelayMinutes":      0,
	}

	problems := Check(rec)
	require.Len(t, problems, 1)
	assert.Equal(t, "startThresholdWatt", problems[0].Field)
	assert.Equal(t, "startThresholdWatt should be greater than stopThresholdWatt.", problems[0].Message)
}

func TestCheckEqualThresholds(t *testing.T) {
	rec := validRecord()
	rec["startThresholdWatt"] = 5.0
	rec["stopThresholdWatt"] = 5

	assert.Equal(t, []string{"startThresholdWatt should be greater than stopThresholdWatt."}, messages(Check(rec)))
}

func TestCheckReportsEveryProblem(t *testing.T) {
	rec := Record{
		"name":                   42,
		"switchStateId":          true,
		"intervalSeconds":        0,
		"startThresholdWatt":     "30",
		"stopThresholdWatt":      -1,
		"startCounterLimit":      0,
		"stopCounterLimit":       1,
		"autoOffCounterLimit":    0,
		"switchOffAfterFinished": "yes",
		"resetDelayMinutes":      1441,
	}

	want := []string{
		"name is required and must be a string.",
		"powerStateId is required and must be a datapoint ID string.",
		"switchStateId must be a string if provided.",
		"intervalSeconds must be between 1 and 3600.",
		"startThresholdWatt must be a number.",
		"stopThresholdWatt must be between 0 and Infinity.",
		"startCounterLimit must be between 1 and Infinity.",
		"resetDelayMinutes must be between 0 and 1440.",
		"switchOffAfterFinished must be true or false.",
	}
	assert.Equal(t, want, messages(Check(rec)))
}

func TestCheckNumbers(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		ok    bool
	}{
		{"interval min", "intervalSeconds", 1, true},
		{"interval max", "intervalSeconds", 3600, true},
		{"interval too large", "intervalSeconds", 3601, false},
		{"interval fractional", "intervalSeconds", 2.5, true},
		{"interval missing", "intervalSeconds", nil, false},
		{"interval NaN", "intervalSeconds", math.NaN(), false},
		{"threshold infinite", "startThresholdWatt", math.Inf(1), false},
		{"threshold int64", "startThresholdWatt", int64(100), true},
		{"threshold uint", "startThresholdWatt", uint(100), true},
		{"threshold float32", "startThresholdWatt", float32(99.5), true},
		{"stop counter zero", "stopCounterLimit", 0, false},
		{"auto-off zero", "autoOffCounterLimit", 0, true},
		{"auto-off negative", "autoOffCounterLimit", -1, false},
		{"reset delay max", "resetDelayMinutes", 1440, true},
		{"reset delay bool", "resetDelayMinutes", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			if tt.value == nil {
				delete(rec, tt.key)
			} else {
				rec[tt.key] = tt.value
			}

			problems := Check(rec)
			if tt.ok {
				assert.Empty(t, problems)
				return
			}
			require.Len(t, problems, 1)
			assert.Equal(t, tt.key, problems[0].Field)
		})
	}
}

func TestCheckOptionalSwitch(t *testing.T) {
	for _, v := range []any{nil, ""} {
		rec := validRecord()
		rec["switchStateId"] = v
		assert.Empty(t, Check(rec), "switchStateId=%v", v)
	}

	rec := validRecord()
	delete(rec, "switchStateId")
	assert.Empty(t, Check(rec))
}

func TestCheckEmptyName(t *testing.T) {
	rec := validRecord()
	rec["name"] = ""
	assert.Equal(t, []string{"name is required and must be a string."}, messages(Check(rec)))
}

func TestValidateLogsEachProblem(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	rec := validRecord()
	rec["name"] = nil
	rec["switchOffAfterFinished"] = 1

	assert.False(t, Validate(rec, logrus.NewEntry(logger)))
	assert.Contains(t, buf.String(), "Config error: name is required and must be a string.")
	assert.Contains(t, buf.String(), "Config error: switchOffAfterFinished must be true or false.")
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("level=error")))

	buf.Reset()
	assert.True(t, Validate(validRecord(), logrus.NewEntry(logger)))
	assert.Empty(t, buf.String())

	assert.False(t, Validate(nil, logrus.NewEntry(logger)))
	assert.Contains(t, buf.String(), "Config object is missing entirely.")
}

func TestDecode(t *testing.T) {
	cfg, err := Decode(validRecord())
	require.NoError(t, err)

	assert.Equal(t, WatcherConfig{
		Name:                   "washer",
		PowerStateID:           "fritzdect.0.DECT_116300369609.power",
		SwitchStateID:          "fritzdect.0.DECT_116300369609.state",
		IntervalSeconds:        10,
		StartThresholdWatt:     30,
		StopThresholdWatt:      5,
		StartCounterLimit:      2,
		StopCounterLimit:       2,
		AutoOffCounterLimit:    2,
		SwitchOffAfterFinished: true,
	}, cfg)
	assert.True(t, cfg.HasSwitch())
}

func TestDecodeIgnoresUnknownKeys(t *testing.T) {
	rec := validRecord()
	rec["comment"] = "kitchen"

	_, err := Decode(rec)
	assert.NoError(t, err)
}

func TestInterval(t *testing.T) {
	tests := []struct {
		secs float64
		want time.Duration
	}{
		{0, DefaultInterval},
		{0.2, time.Second},
		{1, time.Second},
		{2.5, 2500 * time.Millisecond},
		{60, time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, WatcherConfig{IntervalSeconds: tt.secs}.Interval(), "intervalSeconds=%v", tt.secs)
	}
}

func TestParseYAML(t *testing.T) {
	rec, err := Parse([]byte(`
name: dryer
powerStateId: shelly.0.plug1.power
switchStateId: shelly.0.plug1.switch
intervalSeconds: 15
startThresholdWatt: 100.5
stopThresholdWatt: 3
startCounterLimit: 3
stopCounterLimit: 6
autoOffCounterLimit: 10
switchOffAfterFinished: false
resetDelayMinutes: 30
`))
	require.NoError(t, err)
	require.Empty(t, Check(rec))

	cfg, err := Decode(rec)
	require.NoError(t, err)
	assert.Equal(t, "dryer", cfg.Name)
	assert.Equal(t, 100.5, cfg.StartThresholdWatt)
	assert.Equal(t, 15*time.Second, cfg.Interval())
	assert.Equal(t, float64(30), cfg.ResetDelayMinutes)
}

func TestParseJSON(t *testing.T) {
	rec, err := Parse([]byte(`{"name":"x","powerStateId":"p","intervalSeconds":10,"startThresholdWatt":30,` +
		`"stopThresholdWatt":5,"startCounterLimit":1,"stopCounterLimit":1,"autoOffCounterLimit":0,` +
		`"switchOffAfterFinished":false,"resetDelayMinutes":0}`))
	require.NoError(t, err)
	assert.Empty(t, Check(rec))
}

func TestParseEmpty(t *testing.T) {
	rec, err := Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Len(t, Check(rec), 1)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("- a\n- b\n"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "failed to parse YAML", le.Message)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "washer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: washer\npowerStateId: p\n"), 0o600))

	rec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "washer", rec["name"])

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.File, "missing.yaml")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadParseErrorCarriesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [unterminated\n"), 0o600))

	_, err := Load(path)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, path, le.File)
}
