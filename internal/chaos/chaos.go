// internal/chaos/chaos.go
package chaos

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrBaselineBroken aborts an experiment whose signals fail before any fault
// is injected.
var ErrBaselineBroken = errors.New("steady state invalid before injection")

// Experiment is one hypothesis about the ledger: the signals describe the
// steady state, Inject disturbs it and Restore undoes the disturbance.
type Experiment struct {
	Name       string
	Hypothesis string
	Signals    []Signal
	Inject     []Action
	Restore    []Action
	Checks     []Check
	Duration   time.Duration
}

// Signal measures one property of the running system.
type Signal struct {
	Name    string
	Measure func(context.Context) (float64, error)
	Want    Threshold
}

type Threshold struct {
	Op    string // >, <, >=, <=, ==
	Value float64
}

// Holds reports whether v satisfies the threshold. Unknown operators never hold.
func (th Threshold) Holds(v float64) bool {
	switch th.Op {
	case ">":
		return v > th.Value
	case "<":
		return v < th.Value
	case ">=":
		return v >= th.Value
	case "<=":
		return v <= th.Value
	case "==":
		return v == th.Value
	}
	return false
}

type Action struct {
	Target string
	Run    func(context.Context) error
}

// Check is evaluated against the last sample of its signal once the
// experiment has been restored.
type Check struct {
	Signal  string
	Holds   func(float64) bool
	Message string
}

type Result struct {
	Experiment     string              `json:"experiment"`
	Started        time.Time           `json:"started"`
	Finished       time.Time           `json:"finished"`
	Elapsed        time.Duration       `json:"elapsed"`
	BaselineOK     bool                `json:"baseline_ok"`
	HypothesisHeld bool                `json:"hypothesis_held"`
	Breaches       []Breach            `json:"breaches"`
	Samples        map[string][]Sample `json:"samples"`
	Failures       []Failure           `json:"failures"`
	FailedChecks   []string            `json:"failed_checks,omitempty"`
	Recovery       *time.Duration      `json:"recovery,omitempty"`
}

// Breach is a signal reading outside its threshold.
type Breach struct {
	Signal string    `json:"signal"`
	Want   float64   `json:"want"`
	Got    float64   `json:"got"`
	At     time.Time `json:"at"`
}

type Sample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Failure is an error returned by an action or a signal.
type Failure struct {
	At     time.Time `json:"at"`
	Source string    `json:"source"`
	Err    string    `json:"error"`
}

// Engine runs experiments and keeps their results.
type Engine struct {
	tracer   trace.Tracer
	logger   *slog.Logger
	interval time.Duration
	pause    time.Duration

	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

type Option func(*Engine)

// WithSampleInterval sets how often signals are read while observing. Default 1s.
func WithSampleInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithPause sets the wait between game day experiments. Default 30s.
func WithPause(d time.Duration) Option {
	return func(e *Engine) { e.pause = d }
}

func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		tracer:   otel.Tracer("libraripro/chaos"),
		logger:   logger,
		interval: time.Second,
		pause:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Register(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Run verifies the baseline, injects, observes for the experiment's
// duration, restores and evaluates the checks. Only runs that pass the
// baseline are recorded.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run", trace.WithAttributes(
		attribute.String("chaos.experiment", exp.Name),
	))
	defer span.End()

	res := &Result{
		Experiment: exp.Name,
		Started:    time.Now(),
		Samples:    make(map[string][]Sample),
	}

	if breaches := e.baseline(ctx, exp.Signals); len(breaches) > 0 {
		res.Breaches = breaches
		span.SetAttributes(attribute.Bool("chaos.baseline_ok", false))
		return res, ErrBaselineBroken
	}
	res.BaselineOK = true

	span.AddEvent("inject")
	e.runActions(ctx, exp.Inject, res)

	span.AddEvent("observe")
	e.observe(ctx, exp, res)

	span.AddEvent("restore")
	e.runActions(ctx, exp.Restore, res)

	res.HypothesisHeld = res.evaluate(exp.Checks)
	res.Finished = time.Now()
	res.Elapsed = res.Finished.Sub(res.Started)

	e.mu.Lock()
	e.results = append(e.results, *res)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("chaos.hypothesis_held", res.HypothesisHeld),
		attribute.Int("chaos.breaches", len(res.Breaches)),
	)
	return res, nil
}

func (e *Engine) baseline(ctx context.Context, signals []Signal) []Breach {
	var out []Breach
	for _, p := range signals {
		v, err := p.Measure(ctx)
		if err != nil {
			// A signal that cannot be read is a broken baseline.
			v = -1
		}
		if err != nil || !p.Want.Holds(v) {
			out = append(out, Breach{Signal: p.Name, Want: p.Want.Value, Got: v, At: time.Now()})
		}
	}
	return out
}

func (e *Engine) runActions(ctx context.Context, actions []Action, res *Result) {
	for _, a := range actions {
		if err := a.Run(ctx); err != nil {
			res.fail(a.Target, err)
			trace.SpanFromContext(ctx).RecordError(err)
		}
	}
}

// observe reads every signal on each tick until the duration elapses. At
// least one round of samples is always taken. Recovery is the time from the
// first breach to the first reading back within threshold.
func (e *Engine) observe(ctx context.Context, exp Experiment, res *Result) {
	window, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	var breachedAt time.Time
	round := func() {
		for _, p := range exp.Signals {
			v, err := p.Measure(ctx)
			if err != nil {
				res.fail(p.Name, err)
				continue
			}
			now := time.Now()
			res.Samples[p.Name] = append(res.Samples[p.Name], Sample{At: now, Value: v})

			switch {
			case !p.Want.Holds(v):
				if breachedAt.IsZero() {
					breachedAt = now
				}
				res.Breaches = append(res.Breaches, Breach{Signal: p.Name, Want: p.Want.Value, Got: v, At: now})
			case !breachedAt.IsZero() && res.Recovery == nil:
				d := now.Sub(breachedAt)
				res.Recovery = &d
			}
		}
	}

	tick := time.NewTicker(e.interval)
	defer tick.Stop()

	rounds := 0
	for {
		select {
		case <-window.Done():
			if rounds == 0 {
				round()
			}
			return
		case <-tick.C:
			round()
			rounds++
		}
	}
}

func (r *Result) fail(source string, err error) {
	r.Failures = append(r.Failures, Failure{At: time.Now(), Source: source, Err: err.Error()})
}

// evaluate records the message of every check that fails. A signal that was
// never sampled fails its checks.
func (r *Result) evaluate(checks []Check) bool {
	held := true
	for _, c := range checks {
		samples := r.Samples[c.Signal]
		if len(samples) == 0 || !c.Holds(samples[len(samples)-1].Value) {
			r.FailedChecks = append(r.FailedChecks, c.Message)
			held = false
		}
	}
	return held
}

// GameDay is an ordered set of experiments run back to back.
type GameDay struct {
	Name      string
	Date      time.Time
	Scenarios []Experiment
}

// RunGameDay runs every scenario in order, pausing between them, and reports
// whether all hypotheses held. A broken baseline counts as a failed scenario.
func (e *Engine) RunGameDay(ctx context.Context, gd GameDay) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day", trace.WithAttributes(
		attribute.String("chaos.game_day", gd.Name),
	))
	defer span.End()

	e.logger.Info("starting game day", "name", gd.Name, "date", gd.Date.Format(time.DateOnly), "scenarios", len(gd.Scenarios))

	passed := true
	for i, exp := range gd.Scenarios {
		if i > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(e.pause):
			}
		}

		e.logger.Info("running experiment", "step", i+1, "name", exp.Name, "hypothesis", exp.Hypothesis)
		res, err := e.Run(ctx, exp)
		if err != nil {
			e.logger.Error("experiment aborted", "name", exp.Name, "breaches", len(res.Breaches), "error", err)
			passed = false
			continue
		}
		e.report(res)
		passed = passed && res.HypothesisHeld
	}

	span.SetAttributes(attribute.Bool("chaos.passed", passed))
	return passed, nil
}

func (e *Engine) report(res *Result) {
	attrs := []any{
		"name", res.Experiment,
		"elapsed", res.Elapsed,
		"breaches", len(res.Breaches),
		"failures", len(res.Failures),
	}
	if res.Recovery != nil {
		attrs = append(attrs, "recovery", *res.Recovery)
	}
	if !res.HypothesisHeld {
		e.logger.Warn("hypothesis violated", append(attrs, "failed_checks", res.FailedChecks)...)
		return
	}
	e.logger.Info("hypothesis held", attrs...)
}
