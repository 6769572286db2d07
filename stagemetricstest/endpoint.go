package stagemetricstest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/thought-machine/stagemetrics/config"
)

const (
	// Username is the basic auth user expected by an Endpoint.
	Username = "metrics-user"
	// Password is the basic auth password expected by an Endpoint.
	Password = "metrics-pass"
)

// ReceivedMetric is a payload as decoded by the endpoint. Optional fields are pointers so tests can
// tell an absent field from an empty one.
type ReceivedMetric struct {
	RunID           string   `json:"runId"`
	JobName         string   `json:"jobName"`
	JobURL          string   `json:"jobUrl"`
	BuildTool       string   `json:"buildTool"`
	ControllerName  *string  `json:"controllerName"`
	Name            string   `json:"name"`
	StartTimeMillis int64    `json:"startTimeMillis"`
	DurationMillis  int64    `json:"durationMillis"`
	Status          string   `json:"status"`
	StageBuildTool  *string  `json:"stageBuildTool"`
	ShellLabels     []string `json:"shLabels"`
}

// A Request is one delivery received by an Endpoint.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   string

	// Metric is the decoded payload query parameter.
	Metric ReceivedMetric
	// Fields is the same payload decoded into a generic map.
	Fields map[string]any
}

// An Endpoint is a fake metrics-collection endpoint which records every request it receives.
// By default it answers 201 Created; individual stages can be made to fail with FailStage.
type Endpoint struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
	failures map[string]int
}

// NewEndpoint starts a plain HTTP Endpoint which is closed when the test finishes.
func NewEndpoint(t *testing.T) *Endpoint {
	e := &Endpoint{failures: map[string]int{}}
	e.Server = httptest.NewServer(http.HandlerFunc(e.handle))
	t.Cleanup(e.Close)
	return e
}

// NewTLSEndpoint starts an HTTPS Endpoint with a self-signed certificate.
func NewTLSEndpoint(t *testing.T) *Endpoint {
	e := &Endpoint{failures: map[string]int{}}
	e.Server = httptest.NewTLSServer(http.HandlerFunc(e.handle))
	t.Cleanup(e.Close)
	return e
}

// FailStage makes the endpoint answer with the given status code for payloads of the named stage.
func (e *Endpoint) FailStage(name string, statusCode int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[name] = statusCode
}

// Requests returns every request received so far, in arrival order.
func (e *Endpoint) Requests() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Request(nil), e.requests...)
}

// Settings returns settings pointing at the endpoint with the expected credentials.
func (e *Endpoint) Settings() config.Settings {
	return config.Settings{
		EndpointURL: e.URL,
		Username:    Username,
		Password:    Password,
	}
}

func (e *Endpoint) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   string(body),
	}
	raw := req.Query.Get("payload")
	_ = json.Unmarshal([]byte(raw), &req.Metric)
	_ = json.Unmarshal([]byte(raw), &req.Fields)

	e.mu.Lock()
	e.requests = append(e.requests, req)
	status, failed := e.failures[req.Metric.Name]
	e.mu.Unlock()

	if user, pass, ok := r.BasicAuth(); !ok || user != Username || pass != Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if failed {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, `{"result":"ok"}`)
}
