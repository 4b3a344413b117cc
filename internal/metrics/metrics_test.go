package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObjectMinted()
	r.ObjectMinted()
	r.ActivityCreated()
	r.Rollback()
	r.ValidationFailed("object")
	r.ValidationFailed("object")
	r.ValidationFailed("pre_build")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.objectsMinted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activitiesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rollbacks))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.validationFailures.WithLabelValues("object")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.validationFailures.WithLabelValues("pre_build")))
}

func TestRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	assert.Error(t, err)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObjectMinted()
		r.ActivityCreated()
		r.Rollback()
		r.ValidationFailed("activity")
	})
}

func TestHandler_ExposesCounters(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	r, err := NewRecorder(reg)
	require.NoError(t, err)
	r.Rollback()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "sequencer_rollbacks_total 1")
}
