package stagemetrics

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thought-machine/stagemetrics/config"
)

type instrumentedTransport struct {
	next http.RoundTripper
}

func (t instrumentedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(r)
}

func TestNewHTTPClientWithWrappedDefaultTransport(t *testing.T) {
	orig := http.DefaultTransport
	http.DefaultTransport = instrumentedTransport{next: orig}
	t.Cleanup(func() { http.DefaultTransport = orig })

	client := newHTTPClient(config.Settings{TrustSelfSigned: true})
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, transport.TLSClientConfig)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
}

func TestNewHTTPClientLeavesDefaultTransportAlone(t *testing.T) {
	newHTTPClient(config.Settings{TrustSelfSigned: true})
	def := http.DefaultTransport.(*http.Transport)
	assert.True(t, def.TLSClientConfig == nil || !def.TLSClientConfig.InsecureSkipVerify)
}

func TestReporterReusesClientUntilSettingsChange(t *testing.T) {
	settings := config.Settings{EndpointURL: "https://metrics.example.com", Username: "u", Password: "p"}
	r := NewReporter(config.NewMemoryStore(settings))

	first := r.clientFor(settings)
	assert.Same(t, first, r.clientFor(settings))

	settings.TrustSelfSigned = true
	second := r.clientFor(settings)
	assert.NotSame(t, first, second)
	assert.Same(t, second, r.clientFor(settings))
}

func TestReporterPrefersSuppliedClient(t *testing.T) {
	supplied := &http.Client{}
	r := NewReporter(config.NewMemoryStore(config.Settings{}), WithHTTPClient(supplied))
	assert.Same(t, supplied, r.clientFor(config.Settings{TrustSelfSigned: true}))
}
