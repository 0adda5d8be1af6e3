package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, 3, c.Engine.MinDwell)
	assert.InDelta(t, 1.0, c.Engine.Weights.Sum(), 1e-9)
	assert.Equal(t, 0.65, c.Engine.Thresholds.Emergency.Enter)
	assert.Equal(t, 0.5, c.Engine.Thresholds.Emergency.Exit)
	assert.Equal(t, 20, c.Engine.BaselineStaff["doctor"])
	assert.Equal(t, 4, c.Engine.Staffing.Surge["nurse"])
	assert.Equal(t, []string{"doctor"}, c.Engine.Staffing.ApprovalRequired)
	assert.Equal(t, 5*time.Second, c.Alerting.Timeout)
	assert.Equal(t, "memory", c.Ledger.Backend)
	assert.True(t, c.AuditRetry.Enabled)
	assert.Equal(t, 30*time.Second, c.AuditRetry.RetryDelay)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: test
engine:
  min_dwell: 0
  model:
    blend_alpha: 0
  weights:
    occupancy: 0.25
    load: 0.25
    shortage: 0.25
    external: 0.25
`))
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 0, c.Engine.MinDwell)
	assert.Equal(t, 0.0, c.Engine.Model.BlendAlpha)
	assert.Equal(t, 0.25, c.Engine.Weights.Occupancy)
}

func TestParseRejectsMalformedEngine(t *testing.T) {
	cases := map[string]string{
		"weights do not sum to one": `
engine:
  weights: {occupancy: 0.5, load: 0.5, shortage: 0.5, external: 0}
`,
		"exit above enter": `
engine:
  thresholds:
    emergency: {enter: 0.6, exit: 0.7}
`,
		"proactive above emergency": `
engine:
  thresholds:
    proactive: {enter: 0.8, exit: 0.45}
`,
		"alpha out of range": `
engine:
  model: {blend_alpha: 1.5}
`,
		"negative baseline": `
engine:
  baseline_staff: {doctor: -1}
`,
		"model without url": `
engine:
  model: {enabled: true}
`,
		"kafka without brokers": `
kafka:
  enabled: true
`,
		"unknown ledger backend": `
ledger:
  backend: postgres
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o600))

	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MODEL_URL", "http://model:8000")
	t.Setenv("ALERT_CHANNELS", "logger://")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Engine.Model.Enabled)
	assert.Equal(t, "http://model:8000", c.Engine.Model.URL)
	assert.Equal(t, []string{"logger://"}, c.Alerting.Channels)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
