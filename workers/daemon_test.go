package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bounty-challenge-system/metrics"
)

func TestDaemon_RunnerRecordsOutcome(t *testing.T) {
	d, err := NewDaemon(testLogger(), clockwork.NewFakeClockAt(baseTime))
	require.NoError(t, err)

	okBefore := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("test-ok", metrics.OutcomeSuccess))
	errBefore := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("test-err", metrics.OutcomeError))

	ran := false
	d.runner("test-ok", TaskFunc(func(ctx context.Context) error {
		ran = true
		return nil
	}))(context.Background())
	d.runner("test-err", TaskFunc(func(ctx context.Context) error {
		return errors.New("boom")
	}))(context.Background())

	assert.True(t, ran)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("test-ok", metrics.OutcomeSuccess)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("test-err", metrics.OutcomeError)))
}

func TestDaemon_AddValidatesInterval(t *testing.T) {
	d, err := NewDaemon(testLogger(), nil)
	require.NoError(t, err)

	noop := TaskFunc(func(context.Context) error { return nil })
	assert.Error(t, d.Add(Schedule{Name: "zero", Task: noop}))
	require.NoError(t, d.Add(Schedule{Name: "minute", Interval: time.Minute, Task: noop}))

	d.Start()
	assert.NoError(t, d.Stop())
}
