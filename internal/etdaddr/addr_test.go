package etdaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []string{
		"<tcp/example.com:9876>",
		"<quic/10.0.0.1:1234>",
		"<tcp/[::1]:80>",
		"<tcp/[fe80::1%eth0]:80>",
		"<tcp/[2001:db8::/32]:443>",
	}
	for _, wire := range cases {
		addr, err := Decode(wire)
		require.NoError(t, err, wire)
		assert.Equal(t, wire, addr.String())
	}
}

func TestDecodeRejectsMissingBrackets(t *testing.T) {
	_, err := Decode("tcp/example.com:9876")
	assert.Error(t, err)
}

func TestDecodeRejectsMissingProtocol(t *testing.T) {
	_, err := Decode("</example.com:9876>")
	assert.Error(t, err)
}

func TestDecodeRejectsBadPort(t *testing.T) {
	_, err := Decode("<tcp/example.com:notaport>")
	assert.Error(t, err)

	_, err = Decode("<tcp/example.com:999999>")
	assert.Error(t, err)
}

func TestDecodeRejectsInvalidDNSLabel(t *testing.T) {
	_, err := Decode("<tcp/-bad.example.com:80>")
	assert.Error(t, err)
}

func TestDecodeRejectsUnterminatedIPv6(t *testing.T) {
	_, err := Decode("<tcp/[::1:80>")
	assert.Error(t, err)
}

func TestDecodeFields(t *testing.T) {
	addr, err := Decode("<tcp/example.com:9876>")
	require.NoError(t, err)
	assert.Equal(t, "tcp", addr.Protocol)
	assert.Equal(t, "example.com", addr.Host)
	assert.Equal(t, 9876, addr.Port)
}
