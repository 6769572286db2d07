package stagemetrics

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thought-machine/stagemetrics/config"
)

const (
	reportPath       = "/rest/v1.0/objects"
	reportRequest    = "sendReportingData"
	reportObjectType = "ci_metrics"

	// RequestIDHeader carries a unique ID for each delivery attempt.
	RequestIDHeader = "X-Request-Id"
)

// ReportURL builds the delivery URL for a serialized payload. The payload travels in the query
// string; the request body is always an empty JSON object.
func ReportURL(endpoint, payloadJSON string) string {
	return strings.TrimRight(endpoint, "/") + reportPath +
		"?request=" + reportRequest +
		"&payload=" + url.QueryEscape(payloadJSON) +
		"&reportObjectTypeName=" + reportObjectType
}

// newHTTPClient builds a client honouring the settings' trust decision. Certificate checks are
// only relaxed on this client's own transport, never process-wide.
func newHTTPClient(s config.Settings) *http.Client {
	transport := baseTransport()
	if s.TrustSelfSigned {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicitly configured
	}
	return &http.Client{Transport: transport}
}

// baseTransport clones the default transport. Hosts which wrap http.DefaultTransport (for
// instrumentation, say) get a fresh transport with the standard defaults instead.
func baseTransport() *http.Transport {
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		return t.Clone()
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

type deliveryResult struct {
	requestID  string
	statusCode int
}

// send makes a single delivery attempt. A transport failure returns an error; any response,
// successful or not, is returned for the caller to judge.
func send(ctx context.Context, client *http.Client, s config.Settings, payloadJSON string) (deliveryResult, error) {
	res := deliveryResult{requestID: uuid.NewString()}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ReportURL(s.EndpointURL, payloadJSON), bytes.NewReader([]byte("{}")))
	if err != nil {
		return res, wrapStackErrorf("cannot build request: %w", err)
	}
	req.SetBasicAuth(s.Username, s.Password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, res.requestID)

	resp, err := client.Do(req)
	if err != nil {
		return res, wrapStackErrorf("cannot send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	res.statusCode = resp.StatusCode
	return res, nil
}

func isDelivered(statusCode int) bool {
	return statusCode == http.StatusOK || statusCode == http.StatusCreated
}
