package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func clearEtdcEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ETDC_CONTROL_ADDR", "ETDC_DATA_ADDR", "ETDC_DATA_PROTOCOL",
		"ETDC_SERVICE_NAME", "ETDC_SERVICE_DISPLAY_NAME", "ETDC_SERVICE_DESCRIPTION",
		"ETDC_LOG_FILE", "ETDC_ADVERTISE", "ETDC_CONTROL_TIMEOUT_SEC",
	} {
		t.Setenv(k, "")
	}
}

func TestNewUsesDefaultsWhenUnset(t *testing.T) {
	clearEtdcEnv(t)
	cfg := New()

	assert.Equal(t, ":9876", cfg.ControlListenAddr())
	assert.Equal(t, ":9877", cfg.DataListenAddr())
	assert.Equal(t, "tcp", cfg.DataProtocol())
	assert.True(t, cfg.AdvertiseEnabled())
	assert.Equal(t, time.Duration(0), cfg.ControlReadTimeout())
}

func TestNewReadsOverridesFromEnvironment(t *testing.T) {
	clearEtdcEnv(t)
	t.Setenv("ETDC_CONTROL_ADDR", ":7000")
	t.Setenv("ETDC_DATA_PROTOCOL", "quic")
	t.Setenv("ETDC_ADVERTISE", "false")
	t.Setenv("ETDC_CONTROL_TIMEOUT_SEC", "5")

	cfg := New()
	assert.Equal(t, ":7000", cfg.ControlListenAddr())
	assert.Equal(t, "quic", cfg.DataProtocol())
	assert.False(t, cfg.AdvertiseEnabled())
	assert.Equal(t, 5*time.Second, cfg.ControlReadTimeout())
}

func TestNewIgnoresMalformedOverridesAndFallsBackToDefault(t *testing.T) {
	clearEtdcEnv(t)
	t.Setenv("ETDC_ADVERTISE", "not-a-bool")
	t.Setenv("ETDC_CONTROL_TIMEOUT_SEC", "not-a-number")

	cfg := New()
	assert.True(t, cfg.AdvertiseEnabled())
	assert.Equal(t, time.Duration(0), cfg.ControlReadTimeout())
}
