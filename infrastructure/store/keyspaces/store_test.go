package keyspaces

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateKeys(t *testing.T) {
	keys := CandidateKeys("abc")
	require.Len(t, keys, 8)
	assert.Equal(t, "abc", keys[0])
	assert.Equal(t, "abc-0", keys[1])
	assert.Equal(t, "abc-6", keys[7])
}

func TestTLSVersion(t *testing.T) {
	for name, want := range map[string]uint16{
		"TLS1":   tls.VersionTLS10,
		"TLS1_1": tls.VersionTLS11,
		"TLS1_2": tls.VersionTLS12,
		"tls1_2": tls.VersionTLS12,
		"":       tls.VersionTLS12,
	} {
		got, err := tlsVersion(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := tlsVersion("SSL3")
	assert.Error(t, err)
}
