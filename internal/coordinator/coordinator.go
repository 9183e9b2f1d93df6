package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
	"github.com/danielpatrickdp/adaptive-policy/internal/events"
	"github.com/danielpatrickdp/adaptive-policy/internal/evolution"
	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/report"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

const tracerName = "github.com/danielpatrickdp/adaptive-policy/coordinator"

// #region coordinator

// Coordinator runs iteration cycles: metrics, state, evolution and the
// automatic kill check. It assumes one cycle in flight at a time; callers
// serialize RunOnce.
type Coordinator struct {
	store  Store
	safety Safety
	cfg    Config
	sink   report.Sink
	now    func() time.Time
}

// New creates a coordinator. sink may be nil.
func New(store Store, safety Safety, cfg Config, sink report.Sink) *Coordinator {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = metrics.DefaultWindowSize
	}
	return &Coordinator{
		store:  store,
		safety: safety,
		cfg:    cfg,
		sink:   sink,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// #endregion coordinator

// #region run-once

// RunOnce performs a full cycle over every interaction not yet attributed
// to an iteration. Cycle failures are recorded and swallowed: the iteration
// is completed as dead with empty metrics and Outcome.Failed is set. The
// returned error covers only failures before an iteration exists.
func (c *Coordinator) RunOnce(ctx context.Context) (Outcome, error) {
	killed, err := c.safety.IsKilled(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("check killed: %w", err)
	}
	if killed {
		log.Printf("[CYCLE] system is killed, refusing to run")
		return Outcome{Killed: true}, nil
	}

	ids, err := c.store.UnassignedIDs(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("capture interactions: %w", err)
	}
	if len(ids) == 0 {
		log.Printf("[CYCLE] no unassigned interactions, skipping")
		return Outcome{Empty: true}, nil
	}

	batch, err := c.store.LoadByIDs(ctx, ids)
	if err != nil {
		return Outcome{}, fmt.Errorf("load captured interactions: %w", err)
	}
	if len(batch) == 0 {
		return Outcome{Empty: true}, nil
	}
	start, end := batch[0].Timestamp, batch[len(batch)-1].Timestamp

	current, err := c.store.LatestPolicyVersion(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("current policy: %w", err)
	}

	iterationID, err := c.store.CreateIteration(ctx, start, current.Version)
	if err != nil {
		return Outcome{}, fmt.Errorf("create iteration: %w", err)
	}

	traceID := uuid.New().String()
	out := Outcome{IterationID: iterationID, TraceID: traceID}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "coordinator.RunOnce",
		trace.WithAttributes(
			attribute.Int64("iteration_id", iterationID),
			attribute.String("trace_id", traceID),
			attribute.Int("interaction_count", len(ids)),
		),
	)
	defer span.End()

	log.Printf("[CYCLE] iteration %d created (trace=%s, interactions=%d, policy=v%d)",
		iterationID, traceID, len(ids), current.Version)
	capitan.Emit(ctx, events.CycleStarted,
		events.FieldTraceID.Field(traceID),
		events.FieldIteration.Field(int(iterationID)),
		events.FieldInteraction.Field(len(ids)),
	)
	began := time.Now()

	res, err := c.runCaptured(ctx, iterationID, ids, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle failed")
		c.fail(ctx, iterationID, traceID, len(ids), current.Version, err)
		out.Failed = true
		out.Err = err
		return out, nil
	}
	out.Result = &res

	span.SetAttributes(
		attribute.String("state", string(res.State)),
		attribute.Int("action_count", len(res.Actions)),
	)
	log.Printf("[CYCLE] iteration %d completed: state=%s rr=%.3f rd=%.3f rld=%.3f rf=%.3f sci=%.3f",
		iterationID, res.State, res.Metrics.ResonanceRatio, res.Metrics.RejectionDensity,
		res.Metrics.ResponseLengthDrift, res.Metrics.RefusalFrequency, res.Metrics.SemanticCollapseIndex)
	capitan.Emit(ctx, events.CycleCompleted,
		events.FieldTraceID.Field(traceID),
		events.FieldIteration.Field(int(iterationID)),
		events.FieldState.Field(string(res.State)),
		events.FieldResonance.Field(float32(res.Metrics.ResonanceRatio)),
		events.FieldRejection.Field(float32(res.Metrics.RejectionDensity)),
		events.FieldCollapse.Field(float32(res.Metrics.SemanticCollapseIndex)),
		events.FieldActionCount.Field(len(res.Actions)),
		events.FieldDuration.Field(time.Since(began)),
	)
	c.publish(ctx, reportFor(res, traceID, c.now()))

	kill, reason, err := c.safety.ShouldKill(ctx, res.State, res.Metrics)
	if err != nil {
		span.RecordError(err)
		return out, fmt.Errorf("should kill: %w", err)
	}
	if kill {
		log.Printf("[CYCLE] !!! kill condition met after iteration %d: %s", iterationID, reason)
		if err := c.safety.Kill(ctx, string(reason)); err != nil {
			return out, fmt.Errorf("kill: %w", err)
		}
		c.audit(ctx, current.Version, logging.DecisionAutoKill, string(reason), cycleRecord(res, traceID, ""))
		out.Killed = true
		out.KillReason = reason
	}
	return out, nil
}

// runCaptured attributes the captured set to the iteration and runs the
// cycle. Panics are converted to errors.
func (c *Coordinator) runCaptured(ctx context.Context, iterationID int64, ids []string, start, end time.Time) (res CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in iteration cycle: %v", r)
		}
	}()

	if err := c.store.Assign(ctx, iterationID, ids); err != nil {
		return CycleResult{}, fmt.Errorf("assign interactions: %w", err)
	}
	return c.RunIterationCycle(ctx, iterationID, start, end)
}

func (c *Coordinator) fail(ctx context.Context, iterationID int64, traceID string, count, policyVersion int, cause error) {
	log.Printf("[CYCLE] ERROR during iteration %d: %v", iterationID, cause)
	err := c.store.CompleteIteration(ctx, iterationID, archive.Completion{
		End:               c.now(),
		TotalInteractions: count,
		State:             state.Dead,
		PolicyVersion:     policyVersion,
	})
	if err != nil {
		log.Printf("[CYCLE] failed to mark iteration %d dead: %v", iterationID, err)
	}
	capitan.Error(ctx, events.CycleFailed,
		events.FieldTraceID.Field(traceID),
		events.FieldIteration.Field(int(iterationID)),
		events.FieldError.Field(cause),
	)
	rec := logging.CycleRecord{
		IterationID:      iterationID,
		TraceID:          traceID,
		InteractionCount: count,
		State:            string(state.Dead),
		Error:            cause.Error(),
	}
	c.audit(ctx, policyVersion, logging.DecisionFailed, cause.Error(), rec)
	c.publish(ctx, report.IterationReport{
		IterationID:      iterationID,
		TraceID:          traceID,
		GeneratedAt:      c.now(),
		State:            string(state.Dead),
		InteractionCount: count,
		Failed:           true,
		Error:            cause.Error(),
	})
}

// #endregion run-once

// #region run-iteration-cycle

// RunIterationCycle evaluates one iteration: it computes metrics against
// the previous completed iteration, classifies the state and, unless the
// system is frozen, evolves the policy. The completed iteration record and
// the new policy version are committed together; on error neither is.
//
// The interactions already attributed to iterationID are used. When none
// are, the [start, end] time window is loaded instead.
func (c *Coordinator) RunIterationCycle(ctx context.Context, iterationID int64, start, end time.Time) (CycleResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "coordinator.RunIterationCycle",
		trace.WithAttributes(attribute.Int64("iteration_id", iterationID)),
	)
	defer span.End()

	res, err := c.runIterationCycle(ctx, iterationID, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "iteration cycle failed")
	}
	return res, err
}

func (c *Coordinator) runIterationCycle(ctx context.Context, iterationID int64, start, end time.Time) (CycleResult, error) {
	current, err := c.store.LoadByIteration(ctx, iterationID)
	if err != nil {
		return CycleResult{}, fmt.Errorf("load current: %w", err)
	}
	if len(current) == 0 {
		current, err = c.store.LoadByTimeWindow(ctx, start, end.Add(time.Nanosecond))
		if err != nil {
			return CycleResult{}, fmt.Errorf("load window: %w", err)
		}
	}
	if len(current) == 0 {
		return CycleResult{}, fmt.Errorf("iteration %d: %w", iterationID, ErrNoInteractions)
	}

	var previous []metrics.Interaction
	prevIter, ok, err := c.store.LatestCompletedIteration(ctx, iterationID)
	if err != nil {
		return CycleResult{}, fmt.Errorf("previous iteration: %w", err)
	}
	if ok {
		previous, err = c.store.LoadByIteration(ctx, prevIter.ID)
		if err != nil {
			return CycleResult{}, fmt.Errorf("load previous: %w", err)
		}
	}

	m := metrics.Compute(current, previous, c.cfg.WindowSize)
	var prevMetrics *metrics.IterationMetrics
	if len(previous) > 0 {
		pm := metrics.Compute(previous, nil, c.cfg.WindowSize)
		prevMetrics = &pm
	}

	st, err := state.Evaluate(m, prevMetrics, &c.cfg.Thresholds)
	if err != nil {
		return CycleResult{}, fmt.Errorf("evaluate state: %w", err)
	}

	res := CycleResult{
		IterationID:      iterationID,
		InteractionCount: len(current),
		State:            st,
		Metrics:          m,
		Actions:          []policy.EvolutionAction{},
	}

	frozen, err := c.safety.IsFrozen(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("check frozen: %w", err)
	}
	active, err := c.store.LatestPolicyVersion(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("current policy: %w", err)
	}

	var next *policy.Version
	if frozen {
		res.Frozen = true
	} else {
		evo, err := evolution.Evolve(m, prevMetrics, active.Policy, &c.cfg.Rules)
		if err != nil {
			return CycleResult{}, fmt.Errorf("evolve: %w", err)
		}
		next = &policy.Version{
			Version:    active.Version + 1,
			Policy:     evo.Policy,
			PromptText: evo.PromptText,
			Actions:    policy.ActionStrings(evo.Actions),
			CreatedAt:  c.now(),
		}
		res.Actions = evo.Actions
	}

	err = c.store.CommitIteration(ctx, iterationID, archive.Completion{
		End:               c.now(),
		TotalInteractions: m.TotalResponses,
		State:             st,
		Metrics:           &m,
		PolicyVersion:     active.Version,
	}, next)
	if err != nil {
		return CycleResult{}, fmt.Errorf("commit iteration: %w", err)
	}

	if next == nil {
		log.Printf("[CYCLE] system is FROZEN, skipped policy evolution for iteration %d", iterationID)
		capitan.Emit(ctx, events.EvolutionSkipped, events.FieldIteration.Field(int(iterationID)))
		c.audit(ctx, 0, logging.DecisionFrozenSkip, "", cycleRecord(res, "", ""))
		return res, nil
	}

	res.NewPolicyVersion = &next.Version
	log.Printf("[CYCLE] evolution actions=%v, saved v%d: max_tokens=%d refusal=%.2f perturbation=%.2f temp=%.2f",
		next.Actions, next.Version, next.Policy.MaxOutputTokens, next.Policy.RefusalThreshold,
		next.Policy.PerturbationLevel, next.Policy.Temperature)
	capitan.Emit(ctx, events.PolicyEvolved,
		events.FieldIteration.Field(int(iterationID)),
		events.FieldVersion.Field(next.Version),
		events.FieldActionCount.Field(len(res.Actions)),
	)
	c.audit(ctx, next.Version, logging.DecisionEvolve, "", cycleRecord(res, "", ""))
	return res, nil
}

// #endregion run-iteration-cycle

// #region helpers

func (c *Coordinator) audit(ctx context.Context, version int, decision, reason string, rec logging.CycleRecord) {
	details, err := logging.MarshalCycleRecord(rec)
	if err != nil {
		log.Printf("[CYCLE] failed to encode %s decision: %v", decision, err)
		return
	}
	entry := logging.Entry{
		Version:     version,
		Trigger:     logging.TriggerCycle,
		Decision:    decision,
		Reason:      reason,
		DetailsJSON: details,
	}
	if decision == logging.DecisionAutoKill {
		entry.Trigger = logging.TriggerAuto
	}
	if err := c.store.LogDecision(ctx, entry); err != nil {
		log.Printf("[CYCLE] failed to record %s decision: %v", decision, err)
	}
}

func (c *Coordinator) publish(ctx context.Context, r report.IterationReport) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Publish(ctx, r); err != nil {
		log.Printf("[CYCLE] failed to publish report for iteration %d: %v", r.IterationID, err)
	}
}

func cycleRecord(res CycleResult, traceID, errMsg string) logging.CycleRecord {
	return logging.CycleRecord{
		IterationID:      res.IterationID,
		TraceID:          traceID,
		InteractionCount: res.InteractionCount,
		State:            string(res.State),
		Metrics:          res.Metrics,
		Actions:          policy.ActionStrings(res.Actions),
		Frozen:           res.Frozen,
		Error:            errMsg,
	}
}

func reportFor(res CycleResult, traceID string, now time.Time) report.IterationReport {
	m := res.Metrics
	return report.IterationReport{
		IterationID:      res.IterationID,
		TraceID:          traceID,
		GeneratedAt:      now,
		State:            string(res.State),
		Metrics:          &m,
		Actions:          policy.ActionStrings(res.Actions),
		PromptVersion:    res.NewPolicyVersion,
		InteractionCount: res.InteractionCount,
		Frozen:           res.Frozen,
	}
}

// #endregion helpers
