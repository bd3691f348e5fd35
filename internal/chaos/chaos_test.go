package chaos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"libraripro/internal/circulation"
	"libraripro/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine() *Engine {
	return NewEngine(discardLogger(),
		WithSampleInterval(5*time.Millisecond),
		WithPause(0),
	)
}

func newTestTarget(t *testing.T) *Target {
	target, err := NewTarget(store.NewMemoryStore(), circulation.DefaultPolicy(), discardLogger())
	require.NoError(t, err)
	target.Duration = 30 * time.Millisecond
	require.NoError(t, target.Seed(context.Background(), 4, 3))
	return target
}

func TestThresholdHolds(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 2, true},
		{">", 1, false},
		{"<", 0, true},
		{">=", 1, true},
		{"<=", 1, true},
		{"<=", 1.5, false},
		{"==", 1, true},
		{"!=", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			assert.Equal(t, tt.want, Threshold{Op: tt.op, Value: 1}.Holds(tt.value))
		})
	}
}

func TestRun_BrokenBaseline(t *testing.T) {
	ce := newTestEngine()
	injected := false

	result, err := ce.Run(context.Background(), Experiment{
		Name: "broken-baseline",
		Signals: []Signal{{
			Name:    "errors",
			Measure: func(context.Context) (float64, error) { return 3, nil },
			Want:    Threshold{Op: "==", Value: 0},
		}},
		Inject:   []Action{{Run: func(context.Context) error { injected = true; return nil }}},
		Duration: 10 * time.Millisecond,
	})

	require.ErrorIs(t, err, ErrBaselineBroken)
	assert.False(t, result.BaselineOK)
	require.Len(t, result.Breaches, 1)
	assert.Equal(t, 3.0, result.Breaches[0].Got)
	assert.False(t, injected, "faults must not be injected when the baseline is broken")
	assert.Empty(t, ce.Results())
}

func TestRun_RecordsBreachesAndRecovery(t *testing.T) {
	ce := newTestEngine()
	values := []float64{0, 5, 5, 0}
	calls := 0
	rolledBack := false

	result, err := ce.Run(context.Background(), Experiment{
		Name: "transient-spike",
		Signals: []Signal{{
			Name: "errors",
			Measure: func(context.Context) (float64, error) {
				v := values[min(calls, len(values)-1)]
				calls++
				return v, nil
			},
			Want: Threshold{Op: "<", Value: 1},
		}},
		Inject:  []Action{{Target: "noop", Run: func(context.Context) error { return errors.New("partial injection") }}},
		Restore: []Action{{Run: func(context.Context) error { rolledBack = true; return nil }}},
		Checks: []Check{{
			Signal:  "errors",
			Holds:   func(v float64) bool { return v == 0 },
			Message: "errors should settle at zero",
		}},
		Duration: 60 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.BaselineOK)
	assert.True(t, result.HypothesisHeld)
	assert.True(t, rolledBack)
	assert.Len(t, result.Breaches, 2)
	require.NotNil(t, result.Recovery)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "noop", result.Failures[0].Source)
	assert.Len(t, ce.Results(), 1)
}

func TestRun_FailedCheck(t *testing.T) {
	ce := newTestEngine()

	result, err := ce.Run(context.Background(), Experiment{
		Name: "never-observed",
		Checks: []Check{{
			Signal:  "missing",
			Holds:   func(float64) bool { return true },
			Message: "missing metric",
		}},
		Duration: 10 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.False(t, result.HypothesisHeld)
	assert.Equal(t, []string{"missing metric"}, result.FailedChecks)
}

func TestFaultyStore_FailedCommitIsDiscarded(t *testing.T) {
	ctx := context.Background()
	fs := NewFaultyStore(store.NewMemoryStore())
	fs.FailEvery(2)

	write := func(v []string) error {
		return fs.Update(ctx, func(tx store.Tx) error { return tx.Save(store.Books, v) })
	}

	require.NoError(t, write([]string{"first"}))
	require.ErrorIs(t, write([]string{"second"}), ErrInjectedFault)
	assert.Equal(t, 1, fs.Injected())

	var got []string
	require.NoError(t, fs.View(ctx, func(tx store.Tx) error { return tx.Load(store.Books, &got) }))
	assert.Equal(t, []string{"first"}, got)

	fs.FailEvery(0)
	require.NoError(t, write([]string{"third"}))
	require.NoError(t, write([]string{"fourth"}))
}

func TestFaultyStore_DelayHonoursContext(t *testing.T) {
	fs := NewFaultyStore(store.NewMemoryStore())
	fs.Delay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fs.Update(ctx, func(store.Tx) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentIssueRaceExperiment(t *testing.T) {
	target := newTestTarget(t)
	ce := newTestEngine()

	result, err := ce.Run(context.Background(), target.ConcurrentIssueRaceExperiment(8))
	require.NoError(t, err)
	assert.True(t, result.HypothesisHeld, "failed assertions: %v", result.FailedChecks)
	assert.Empty(t, result.Breaches)
}

func TestCommitFailureExperiment(t *testing.T) {
	target := newTestTarget(t)
	ce := newTestEngine()

	result, err := ce.Run(context.Background(), target.CommitFailureExperiment(2, 20))
	require.NoError(t, err)
	assert.True(t, result.HypothesisHeld, "failed assertions: %v", result.FailedChecks)
	assert.Positive(t, target.Store.Injected())

	violations, err := target.App.Circulation.Verify(context.Background())
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestStoreLatencyExperiment(t *testing.T) {
	target := newTestTarget(t)
	ce := newTestEngine()

	result, err := ce.Run(context.Background(), target.StoreLatencyExperiment(time.Millisecond, 6))
	require.NoError(t, err)
	assert.True(t, result.HypothesisHeld, "failed assertions: %v", result.FailedChecks)
}

func TestRunGameDay(t *testing.T) {
	target := newTestTarget(t)
	ce := newTestEngine()
	ce.RegisterLedgerExperiments(target)
	require.Len(t, ce.Experiments(), 3)

	passed, err := ce.RunGameDay(context.Background(), GameDay{
		Name:      "ledger resilience",
		Date:      time.Now(),
		Scenarios: ce.Experiments(),
	})
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Len(t, ce.Results(), 3)
}
