package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveTurn("backend", OutcomeOK, 2*time.Second)
	m.ObserveTurn("backend", OutcomeFailed, time.Second)
	m.ObserveTurn("backend", OutcomeOK, time.Second)
	m.SelectionFallback("frontend")
	m.ObserveValidation(artifact.Report{
		Accepted: 3,
		Rejected: map[artifact.RejectReason]int{artifact.RejectTooShort: 2, artifact.RejectTraversal: 1},
	})
	m.ArchiveBuilt(nil)
	m.ArchiveBuilt(errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("backend", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("backend", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("frontend")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.accepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rejected.WithLabelValues(string(artifact.RejectTooShort))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.archives.WithLabelValues("error")))

	_, err = New(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("t", OutcomeOK, time.Second)
		m.SelectionFallback("t")
		m.ObserveValidation(artifact.Report{Accepted: 1})
		m.ArchiveBuilt(nil)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.ArchiveBuilt(nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "agentforge_archives_built_total"))
}
