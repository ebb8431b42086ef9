package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSignedTLSConfigProducesUsableCertificate(t *testing.T) {
	cfg, err := selfSignedTLSConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.NotEmpty(t, cfg.Certificates[0].Certificate)
	assert.NotNil(t, cfg.Certificates[0].PrivateKey)
}

func TestNewQUICDialerSetsInsecureSkipVerifyAndALPN(t *testing.T) {
	d, err := NewQUICDialer()
	require.NoError(t, err)
	require.NotNil(t, d.tlsConfig)
	assert.True(t, d.tlsConfig.InsecureSkipVerify)
	assert.Equal(t, []string{"etdc-data"}, d.tlsConfig.NextProtos)
}
