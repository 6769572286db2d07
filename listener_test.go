package stagemetrics_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sm "github.com/thought-machine/stagemetrics"
	"github.com/thought-machine/stagemetrics/config"
	smt "github.com/thought-machine/stagemetrics/stagemetricstest"
)

func buildAndTestRun(t *testing.T) sm.Run {
	return sm.Run{
		ID:      "9",
		JobName: "folder/app",
		Env:     sm.EnvMap{sm.JobURLVariable: "https://ci.example.com/job/app/9/"},
		Graph: smt.NewGraphBuilder().
			Stage("3", "Build", 0).
			Override("4", "BUILD_TOOL=maven").
			End("5", "3", 1500).
			Stage("6", "Test", 2000).
			End("8", "6", 2750).
			MustBuild(t),
	}
}

func TestOnCompleted(t *testing.T) {
	endpoint := smt.NewEndpoint(t)
	settings := endpoint.Settings()
	settings.ControllerName = "ci-eu-1"
	store := config.NewMemoryStore(settings)
	require.NoError(t, store.AppendToLastError("stale entry from a previous run"))

	sm.NewListener(store).OnCompleted(context.Background(), buildAndTestRun(t))

	assert.Empty(t, store.LastError())
	reqs := endpoint.Requests()
	require.Len(t, reqs, 2)

	build := reqs[0].Metric
	assert.Equal(t, "Build", build.Name)
	assert.Equal(t, "SUCCESS", build.Status)
	assert.Equal(t, int64(1500), build.DurationMillis)
	assert.Equal(t, smt.Epoch.UnixMilli(), build.StartTimeMillis)
	assert.Equal(t, "9", build.RunID)
	assert.Equal(t, "folder/app", build.JobName)
	assert.Equal(t, "https://ci.example.com/job/app/9/", build.JobURL)
	assert.Equal(t, "unknown", build.BuildTool)
	require.NotNil(t, build.StageBuildTool)
	assert.Equal(t, "maven", *build.StageBuildTool)
	require.NotNil(t, build.ControllerName)
	assert.Equal(t, "ci-eu-1", *build.ControllerName)

	test := reqs[1].Metric
	assert.Equal(t, "Test", test.Name)
	assert.Equal(t, "SUCCESS", test.Status)
	assert.Equal(t, int64(750), test.DurationMillis)
	assert.Nil(t, test.StageBuildTool)
}

func TestOnCompletedBuildToolFromEnvironment(t *testing.T) {
	endpoint := smt.NewEndpoint(t)
	store := config.NewMemoryStore(endpoint.Settings())

	run := buildAndTestRun(t)
	run.Env = sm.EnvMap{sm.BuildToolKey: "npm"}
	sm.NewListener(store).OnCompleted(context.Background(), run)

	reqs := endpoint.Requests()
	require.Len(t, reqs, 2)
	for _, req := range reqs {
		assert.Equal(t, "npm", req.Metric.BuildTool)
		assert.Equal(t, "unknown", req.Metric.JobURL)
	}
	assert.Equal(t, "maven", *reqs[0].Metric.StageBuildTool)
	assert.Equal(t, "npm", *reqs[1].Metric.StageBuildTool)
}

func TestOnCompletedPipelineOverrideBeatsEnvironment(t *testing.T) {
	endpoint := smt.NewEndpoint(t)
	store := config.NewMemoryStore(endpoint.Settings())

	run := sm.Run{
		ID:      "1",
		JobName: "app",
		Env:     sm.EnvMap{sm.BuildToolKey: "npm"},
		Graph: smt.NewGraphBuilder().
			Override("2", "BUILD_TOOL=gradle").
			Stage("3", "Build", 0).
			End("4", "3", 10).
			MustBuild(t),
	}
	sm.NewListener(store).OnCompleted(context.Background(), run)

	reqs := endpoint.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "gradle", reqs[0].Metric.BuildTool)
}

func TestOnCompletedWithoutEndpoint(t *testing.T) {
	endpoint := smt.NewEndpoint(t)
	store := config.NewMemoryStore(config.Settings{})
	require.NoError(t, store.AppendToLastError("stale"))

	sm.NewListener(store).OnCompleted(context.Background(), buildAndTestRun(t))

	assert.Empty(t, endpoint.Requests())
	log := store.LastError()
	assert.Equal(t, 1, strings.Count(log, "\n"))
	assert.NotContains(t, log, "stale")
	assert.Contains(t, log, "configuration error")
}

func TestOnCompletedWithoutGraph(t *testing.T) {
	endpoint := smt.NewEndpoint(t)
	store := config.NewMemoryStore(endpoint.Settings())

	sm.NewListener(store).OnCompleted(context.Background(), sm.Run{ID: "5", JobName: "app"})

	assert.Empty(t, endpoint.Requests())
	log := store.LastError()
	assert.Equal(t, 1, strings.Count(log, "\n"))
	assert.Contains(t, log, "[app #5]")
	assert.Contains(t, log, sm.ErrNoGraph.Error())
}

func TestOnCompletedRecordsOnlyFailedStages(t *testing.T) {
	endpoint := smt.NewEndpoint(t)
	endpoint.FailStage("Build", http.StatusBadGateway)
	store := config.NewMemoryStore(endpoint.Settings())

	sm.NewListener(store, sm.WithClock(fixedClock)).OnCompleted(context.Background(), buildAndTestRun(t))

	assert.Len(t, endpoint.Requests(), 2)
	log := store.LastError()
	assert.Equal(t, 1, strings.Count(log, "\n"))
	assert.True(t, strings.HasPrefix(log, "2024-03-01T12:30:00Z [folder/app #9] "), "got %q", log)
	assert.Contains(t, log, "502")
}

func TestOnCompletedAll(t *testing.T) {
	endpoint := smt.NewEndpoint(t)
	store := config.NewMemoryStore(endpoint.Settings())

	var runs []sm.Run
	for i := 0; i < 10; i++ {
		run := buildAndTestRun(t)
		run.ID = fmt.Sprint(i)
		runs = append(runs, run)
	}
	sm.NewListener(store, sm.WithConcurrency(3)).OnCompletedAll(context.Background(), runs...)

	reqs := endpoint.Requests()
	require.Len(t, reqs, 20)
	perRun := map[string]int{}
	for _, req := range reqs {
		perRun[req.Metric.RunID]++
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, 2, perRun[fmt.Sprint(i)], "run %d", i)
	}
	assert.Empty(t, store.LastError())
}

func TestOnCompletedWithFileStore(t *testing.T) {
	endpoint := smt.NewEndpoint(t)
	endpoint.FailStage("Test", http.StatusForbidden)

	path := t.TempDir() + "/stagemetrics.yaml"
	store := smt.Must[*config.FileStore](t)(config.OpenFileStore(path))
	require.NoError(t, store.SetSettings(endpoint.Settings()))

	sm.NewListener(store).OnCompleted(context.Background(), buildAndTestRun(t))

	reopened := smt.Must[*config.FileStore](t)(config.OpenFileStore(path))
	assert.Equal(t, endpoint.Settings(), reopened.Settings())
	assert.Equal(t, 1, strings.Count(reopened.LastError(), "\n"))
	assert.Contains(t, reopened.LastError(), `"Test"`)
}

type wrappedTransport struct {
	next http.RoundTripper
}

func (t wrappedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(r)
}

func TestOnCompletedWithWrappedDefaultTransport(t *testing.T) {
	orig := http.DefaultTransport
	http.DefaultTransport = wrappedTransport{next: orig}
	t.Cleanup(func() { http.DefaultTransport = orig })

	endpoint := smt.NewEndpoint(t)
	store := config.NewMemoryStore(endpoint.Settings())

	sm.NewListener(store).OnCompleted(context.Background(), buildAndTestRun(t))

	assert.Len(t, endpoint.Requests(), 2)
	assert.Empty(t, store.LastError())
}

func TestOnCompletedAllKeepsEveryRunsErrors(t *testing.T) {
	store := config.NewMemoryStore(config.Settings{})
	require.NoError(t, store.AppendToLastError("stale"))

	var runs []sm.Run
	for i := 0; i < 5; i++ {
		run := buildAndTestRun(t)
		run.ID = fmt.Sprint(i)
		runs = append(runs, run)
	}
	sm.NewListener(store, sm.WithConcurrency(5)).OnCompletedAll(context.Background(), runs...)

	log := store.LastError()
	assert.NotContains(t, log, "stale")
	assert.Equal(t, 5, strings.Count(log, "\n"))
	for i := 0; i < 5; i++ {
		assert.Contains(t, log, fmt.Sprintf("#%d]", i))
	}
}

func TestOnCompletedLogsSettingsWarnings(t *testing.T) {
	endpoint := smt.NewEndpoint(t)
	store := config.NewMemoryStore(endpoint.Settings())
	logger, hook := logtest.NewNullLogger()

	sm.NewListener(store, sm.WithLogger(logger)).OnCompleted(context.Background(), buildAndTestRun(t))

	var warnings []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings = append(warnings, e.Message)
		}
	}
	assert.Contains(t, warnings, "controller name is optional but recommended for identifying different controllers")
	assert.Len(t, endpoint.Requests(), 2)
}
