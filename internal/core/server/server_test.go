package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/linekeeper/internal/core/config"
	"github.com/solatis/linekeeper/internal/events"
	"github.com/solatis/linekeeper/internal/jobs"
	"github.com/solatis/linekeeper/internal/types"
)

const stopInfeedRules = `
rules:
  - name: stop-infeed-when-station-full
    triggers:
      - kind: event
        target: station-1
        event: CurrentItemCountChanged
    conditions:
      - target: station-1
        property: IsFull
        equals: true
    actions:
      - target: infeed
        method: SetStandby
`

func testConfig(t *testing.T) *config.LineConfig {
	t.Helper()
	cfg := config.DefaultLineConfig()
	cfg.Jobs.RetryDelay = 10 * time.Millisecond
	cfg.Modules = []config.ModuleConfig{
		{Name: "infeed", Type: config.ModuleTypeConveyor, Nbr: 1, MaxCapacity: 2},
		{Name: "station-1", Type: config.ModuleTypeStation, Nbr: 1, MaxCapacity: 1},
	}
	cfg.Connections = []config.ConnectionConfig{{From: "infeed", To: "station-1"}}
	return cfg
}

// startServer runs Start in the background and waits until the line is up.
func startServer(t *testing.T, cfg *config.LineConfig) *LineServer {
	t.Helper()
	srv, err := NewLineServer(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("Start() returned early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		assert.NoError(t, srv.Shutdown(context.Background()))
	})
	return srv
}

func TestNewLineServer_Validation(t *testing.T) {
	_, err := NewLineServer(nil)
	assert.Error(t, err)

	cfg := config.DefaultLineConfig()
	_, err = NewLineServer(cfg)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	cfg = testConfig(t)
	cfg.Modules[1].Type = "robot"
	_, err = NewLineServer(cfg)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	cfg = testConfig(t)
	cfg.Connections = append(cfg.Connections, config.ConnectionConfig{From: "infeed", To: "nowhere"})
	_, err = NewLineServer(cfg)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestNewLineServer_BuildsLine(t *testing.T) {
	srv, err := NewLineServer(testConfig(t))
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	infeed, err := srv.Line().Module("infeed")
	require.NoError(t, err)
	assert.Equal(t, types.StateOff, infeed.State())
	assert.Equal(t, []string{"station-1"}, srv.Line().NextModules("infeed"))

	_, err = srv.Line().Surface("jobs")
	assert.NoError(t, err)
}

func TestNewLineServer_RuleFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
rules:
  - name: broken
    triggers:
      - kind: event
        target: station-9
        event: StateChanged
    actions:
      - target: infeed
        method: Stop
`), 0o600))

	cfg := testConfig(t)
	cfg.Rules.File = bad
	_, err := NewLineServer(cfg)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	cfg.Rules.File = filepath.Join(dir, "missing.yaml")
	_, err = NewLineServer(cfg)
	assert.Error(t, err)
}

func TestLineServer_AdmitsJobOntoInfeed(t *testing.T) {
	srv := startServer(t, testConfig(t))

	job := jobs.NewJob("part-a")
	<-srv.Jobs().AddNewJob(job)

	infeed, err := srv.Line().Module("infeed")
	require.NoError(t, err)
	require.Equal(t, 1, infeed.CurrentItemCount())

	got, err := srv.Jobs().JobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobItemInProduction, got.Items[0].State)
	assert.Equal(t, infeed.Base().Items(), got.Items[0].Items)
}

func TestLineServer_FullInfeedLeavesJobWaiting(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules[0].MaxCapacity = 1
	srv := startServer(t, cfg)

	first := jobs.NewJob("a")
	second := jobs.NewJob("b")
	<-srv.Jobs().AddNewJob(first)
	<-srv.Jobs().AddNewJob(second)

	got, err := srv.Jobs().JobByID(second.ID)
	require.NoError(t, err)
	assert.True(t, got.IsUnstarted())

	// moving the first item on frees the infeed; the retry admits the second job
	infeed, err := srv.Line().Module("infeed")
	require.NoError(t, err)
	require.NoError(t, srv.Line().MoveItemToNext("infeed", infeed.Base().Items()[0]))

	require.Eventually(t, func() bool {
		j, err := srv.Jobs().JobByID(second.ID)
		return err == nil && !j.IsUnstarted()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLineServer_RulesStopInfeed(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(file, []byte(stopInfeedRules), 0o600))

	cfg := testConfig(t)
	cfg.Rules.File = file
	srv := startServer(t, cfg)
	require.Equal(t, 1, srv.Rules().Len())

	<-srv.Jobs().AddNewJob(jobs.NewJob("a"))
	infeed, err := srv.Line().Module("infeed")
	require.NoError(t, err)
	require.NoError(t, srv.Line().MoveItemToNext("infeed", infeed.Base().Items()[0]))

	assert.Equal(t, types.StateStandby, infeed.State())
}

func TestLineServer_JobCompletesWhenItemLeavesLine(t *testing.T) {
	srv := startServer(t, testConfig(t))

	var completed []types.JobID
	events.Subscribe(srv.Events(), func(_ context.Context, ev events.JobCompleted) error {
		completed = append(completed, ev.JobID)
		return nil
	})

	job := jobs.NewJob("part-a")
	<-srv.Jobs().AddNewJob(job)

	infeed, err := srv.Line().Module("infeed")
	require.NoError(t, err)
	item := infeed.Base().Items()[0]

	require.NoError(t, srv.Line().MoveItemToNext("infeed", item))
	require.NoError(t, srv.Line().MoveItemToNext("station-1", item))

	assert.Equal(t, []types.JobID{job.ID}, completed)
	_, err = srv.Jobs().JobByID(job.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Zero(t, srv.Jobs().Container().Len())
}

func TestLineServer_FaultFailsJobItems(t *testing.T) {
	srv := startServer(t, testConfig(t))

	job := jobs.NewJob("part-a")
	<-srv.Jobs().AddNewJob(job)

	infeed, err := srv.Line().Module("infeed")
	require.NoError(t, err)
	infeed.Base().Fault("belt jam")

	got, err := srv.Jobs().JobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobItemFailed, got.Items[0].State)
	assert.Equal(t, 1, got.Items[0].Failures)
}

func TestLineServer_MetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"
	srv := startServer(t, cfg)

	<-srv.Jobs().AddNewJob(jobs.NewJob("a"))

	resp, err := http.Get("http://" + srv.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `linekeeper_module_items{module="infeed"} 1`)
	assert.Contains(t, string(body), "linekeeper_job_start_attempts_total")
}
