package deploy

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/perimeter/internal/config"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	out   map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: make(map[string]error), out: make(map[string]string)}
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)
	if err := ctx.Err(); err != nil {
		return nil, &CommandError{Command: line, Err: err}
	}
	for prefix, err := range f.fail {
		if strings.HasPrefix(line, prefix) {
			return []byte("boom\n"), &CommandError{Command: line, Output: "boom\n", Err: err}
		}
	}
	for prefix, out := range f.out {
		if strings.HasPrefix(line, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func (f *fakeRunner) ran(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func healthServer(t *testing.T, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func deployConfig(t *testing.T, healthURL string) config.DeployConfig {
	t.Helper()
	return config.DeployConfig{
		Dir:          t.TempDir(),
		Branch:       "main",
		ComposeFile:  "docker-compose.yml",
		Service:      "app",
		HealthURL:    healthURL,
		ProbeTimeout: 2 * time.Second,
		LogLines:     50,
		LockFile:     filepath.Join(t.TempDir(), "deploy.lock"),
	}
}

func run(t *testing.T, cfg config.DeployConfig, r *fakeRunner) (*Report, string) {
	t.Helper()
	var out bytes.Buffer
	report, err := New(cfg, &out, WithRunner(r)).Run(context.Background())
	require.NoError(t, err)
	return report, out.String()
}

func statuses(r *Report) map[string]Status {
	m := make(map[string]Status)
	for _, o := range r.Outcomes {
		m[o.Stage] = o.Status
	}
	return m
}

func TestDeploy_AllStagesSucceed(t *testing.T) {
	srv := healthServer(t, http.StatusOK)
	r := newFakeRunner()
	r.out["git rev-parse"] = "abc1234\n"
	r.out["docker compose -f docker-compose.yml logs"] = "app  | started\n"

	report, out := run(t, deployConfig(t, srv.URL+"/health"), r)

	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, map[string]Status{
		StageLocate:      Success,
		StageSynchronize: Success,
		StageRebuild:     Success,
		StageVerify:      Success,
		StageReport:      Success,
	}, statuses(report))
	assert.Equal(t, []string{
		"git fetch --all --tags",
		"git reset --hard origin/main",
		"git rev-parse --short HEAD",
		"docker compose -f docker-compose.yml build app",
		"docker compose -f docker-compose.yml up -d app",
		"docker compose -f docker-compose.yml logs --tail 50 app",
	}, r.calls)
	assert.Contains(t, out, "app  | started")
	assert.Contains(t, out, "abc1234")
	assert.NotContains(t, out, "WARNING")
}

func TestDeploy_RepeatedRunsConverge(t *testing.T) {
	srv := healthServer(t, http.StatusOK)
	cfg := deployConfig(t, srv.URL+"/health")

	for i := 0; i < 2; i++ {
		report, _ := run(t, cfg, newFakeRunner())
		assert.Equal(t, 0, report.ExitCode(), "run %d", i)
		assert.Len(t, report.Outcomes, 5)
	}
}

func TestDeploy_HealthDownIsAWarning(t *testing.T) {
	srv := healthServer(t, http.StatusServiceUnavailable)
	r := newFakeRunner()

	report, out := run(t, deployConfig(t, srv.URL+"/health"), r)

	assert.Equal(t, 0, report.ExitCode())
	o, ok := report.Outcome(StageVerify)
	require.True(t, ok)
	assert.Equal(t, Warning, o.Status)
	assert.Contains(t, out, "WARNING: verify")
	assert.Equal(t, Success, statuses(report)[StageReport])
	assert.True(t, r.ran("docker compose -f docker-compose.yml logs"))
}

func TestDeploy_HealthUnreachableIsAWarning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/health"
	srv.Close()

	report, out := run(t, deployConfig(t, url), newFakeRunner())
	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, Warning, statuses(report)[StageVerify])
	assert.Contains(t, out, "WARNING")
}

func TestDeploy_FetchFailureAbortsBeforeDisruption(t *testing.T) {
	srv := healthServer(t, http.StatusOK)
	r := newFakeRunner()
	r.fail["git fetch"] = errors.New("exit status 128")

	report, out := run(t, deployConfig(t, srv.URL+"/health"), r)

	assert.Equal(t, 1, report.ExitCode())
	assert.Equal(t, map[string]Status{
		StageLocate:      Success,
		StageSynchronize: Fatal,
		StageRebuild:     Skipped,
		StageVerify:      Skipped,
		StageReport:      Success,
	}, statuses(report))
	assert.False(t, r.ran("git reset"))
	assert.False(t, r.ran("docker compose -f docker-compose.yml build"))
	assert.True(t, r.ran("docker compose -f docker-compose.yml logs"))
	assert.Contains(t, out, "FAILED: synchronize")

	fatal, ok := report.Fatal()
	require.True(t, ok)
	var cmdErr *CommandError
	require.ErrorAs(t, fatal.Err, &cmdErr)
	assert.Equal(t, "git fetch --all --tags", cmdErr.Command)
}

func TestDeploy_BuildFailureKeepsRunningContainer(t *testing.T) {
	srv := healthServer(t, http.StatusOK)
	r := newFakeRunner()
	r.fail["docker compose -f docker-compose.yml build"] = errors.New("exit status 1")

	report, _ := run(t, deployConfig(t, srv.URL+"/health"), r)

	assert.Equal(t, 1, report.ExitCode())
	assert.Equal(t, Fatal, statuses(report)[StageRebuild])
	assert.False(t, r.ran("docker compose -f docker-compose.yml up"))
	assert.Equal(t, Skipped, statuses(report)[StageVerify])
}

func TestDeploy_MissingDirectory(t *testing.T) {
	srv := healthServer(t, http.StatusOK)
	cfg := deployConfig(t, srv.URL+"/health")
	cfg.Dir = filepath.Join(cfg.Dir, "absent")
	r := newFakeRunner()

	report, out := run(t, cfg, r)

	assert.Equal(t, 1, report.ExitCode())
	assert.Equal(t, Fatal, statuses(report)[StageLocate])
	assert.False(t, r.ran("git"))
	assert.Contains(t, out, "FAILED: locate")
}

func TestDeploy_ReportFailureIsAWarning(t *testing.T) {
	srv := healthServer(t, http.StatusOK)
	r := newFakeRunner()
	r.fail["docker compose -f docker-compose.yml logs"] = errors.New("exit status 1")

	report, _ := run(t, deployConfig(t, srv.URL+"/health"), r)
	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, Warning, statuses(report)[StageReport])
}

func TestDeploy_HostLockHeld(t *testing.T) {
	cfg := deployConfig(t, "http://127.0.0.1:1/health")
	held := flock.New(cfg.LockFile)
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = held.Unlock() })

	r := newFakeRunner()
	_, err = New(cfg, &bytes.Buffer{}, WithRunner(r)).Run(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, r.calls)
}

func TestDeploy_InterruptedRunStillTailsLogs(t *testing.T) {
	srv := healthServer(t, http.StatusOK)
	r := newFakeRunner()
	r.out["docker compose -f docker-compose.yml logs"] = "app  | shutting down\n"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	report, err := New(deployConfig(t, srv.URL+"/health"), &out, WithRunner(r)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ExitCode())
	assert.Equal(t, map[string]Status{
		StageLocate:      Success,
		StageSynchronize: Fatal,
		StageRebuild:     Skipped,
		StageVerify:      Skipped,
		StageReport:      Success,
	}, statuses(report))
	assert.Contains(t, out.String(), "app  | shutting down")
	fatal, _ := report.Fatal()
	assert.ErrorIs(t, fatal.Err, context.Canceled)
}

func TestPipeline_AlwaysStagesRunAfterFatal(t *testing.T) {
	var order []string
	stage := func(name string, always bool, status Status) Stage {
		return NewStage(name, always, func(context.Context) Outcome {
			order = append(order, name)
			return Outcome{Status: status}
		})
	}
	tick := time.Unix(0, 0)
	p := &Pipeline{
		Stages: []Stage{
			stage("a", false, Warning),
			stage("b", false, Fatal),
			stage("c", false, Success),
			stage("d", true, Success),
		},
		Now: func() time.Time { tick = tick.Add(time.Second); return tick },
	}

	report := p.Run(context.Background())
	assert.Equal(t, []string{"a", "b", "d"}, order)
	assert.Equal(t, 1, report.ExitCode())
	c, _ := report.Outcome("c")
	assert.Equal(t, Skipped, c.Status)
	d, _ := report.Outcome("d")
	assert.Equal(t, time.Second, d.Duration)
}

func TestCommandError_TrimsOutput(t *testing.T) {
	err := &CommandError{Command: "git fetch", Output: "1\n2\n3\n4\n5\n6\n7\n", Err: errors.New("exit status 1")}
	assert.Equal(t, "git fetch: exit status 1\n3\n4\n5\n6\n7", err.Error())
}
