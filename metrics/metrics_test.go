package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlsengine/client"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestTLSHandshakeRecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewSink(reg)

	sink.TLSHandshake(tlsengine.TLSStats{
		ALPNProtocol:  "h2",
		TLSVersion:    tlsengine.TLSVersionTLS13,
		Resumed:       true,
		CertChainSize: 3,
		HPKPStats:     tlsengine.HPKPMatch,
	})

	c, err := sink.handshakes.GetMetricWithLabelValues("h2", "tls1.3")
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, c))

	r, err := sink.resumed.GetMetricWithLabelValues("true")
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, r))

	h, err := sink.hpkpResults.GetMetricWithLabelValues("match")
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, h))
}

func TestOCSPCheckRecordsVerdicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewSink(reg)

	sink.OCSPCheck(tlsengine.OCSPStats{NValid: 2, NRevoked: 1, NIgnored: 0, Stapling: false})

	valid, err := sink.ocspVerdicts.GetMetricWithLabelValues("valid", "false")
	require.NoError(t, err)
	assert.Equal(t, float64(2), counterValue(t, valid))

	revoked, err := sink.ocspVerdicts.GetMetricWithLabelValues("revoked", "false")
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, revoked))
}

func TestLabelHelpers(t *testing.T) {
	assert.Equal(t, "true", boolLabel(true))
	assert.Equal(t, "false", boolLabel(false))
	assert.Equal(t, "tls1.3", tlsVersionLabel(tlsengine.TLSVersionTLS13))
	assert.Equal(t, "unknown", tlsVersionLabel(tlsengine.TLSVersionUnknown))
	assert.Equal(t, "match", hpkpLabel(tlsengine.HPKPMatch))
	assert.Equal(t, "no_pin_found", hpkpLabel(tlsengine.HPKPNoPinFound))
}
