package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAction(t *testing.T) {
	m := New()
	m.ObserveAction("vpc", "create")
	m.ObserveAction("vpc", "create")
	m.ObserveAction("subnet", "no-op")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues("vpc", "create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("subnet", "no-op")))
}

func TestNilMetricsDiscards(t *testing.T) {
	var m *Metrics
	m.ObserveAction("vpc", "create")
	m.ObserveReconcile(time.Second)
	m.ObserveStage("locate", "success", time.Millisecond)
	m.SetFindings("fail", 1)
	assert.NoError(t, m.Flush("/nonexistent/dir/x.prom"))
}

func TestFlush(t *testing.T) {
	m := New()
	m.ObserveStage("verify", "warning", 2*time.Second)
	m.SetFindings("pass", 7)

	path := filepath.Join(t.TempDir(), "perimeter.prom")
	require.NoError(t, m.Flush(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `perimeter_deploy_stage_duration_seconds_count{stage="verify",status="warning"} 1`), out)
	assert.True(t, strings.Contains(out, `perimeter_audit_findings{severity="pass"} 7`), out)
}

func TestFlushEmptyPath(t *testing.T) {
	assert.NoError(t, New().Flush(""))
}
