// Package events defines the lifecycle signals emitted by the policy engine.
// Observers hook them with capitan.Hook; emission never blocks a cycle.
package events

import "github.com/zoobzio/capitan"

// Signals follow the pattern: policy.<entity>.<event>.
var (
	// Iteration cycle signals.
	CycleStarted = capitan.NewSignal(
		"policy.cycle.started",
		"Iteration cycle captured a batch of interactions",
	)
	CycleCompleted = capitan.NewSignal(
		"policy.cycle.completed",
		"Iteration cycle persisted metrics and state",
	)
	CycleFailed = capitan.NewSignal(
		"policy.cycle.failed",
		"Iteration cycle failed and was marked dead",
	)
	PolicyEvolved = capitan.NewSignal(
		"policy.version.evolved",
		"New policy version saved by evolution",
	)
	EvolutionSkipped = capitan.NewSignal(
		"policy.version.skipped",
		"Evolution skipped because the system is frozen",
	)

	// Safety signals.
	Frozen = capitan.NewSignal(
		"policy.safety.frozen",
		"Policy evolution paused",
	)
	Unfrozen = capitan.NewSignal(
		"policy.safety.unfrozen",
		"Policy evolution resumed",
	)
	RolledBack = capitan.NewSignal(
		"policy.safety.rolled_back",
		"Policy rolled back to an earlier version",
	)
	Killed = capitan.NewSignal(
		"policy.safety.killed",
		"System permanently terminated",
	)
)

// Field keys for policy event data.
var (
	FieldTraceID     = capitan.NewStringKey("trace_id")
	FieldIteration   = capitan.NewIntKey("iteration_id")
	FieldState       = capitan.NewStringKey("state")
	FieldInteraction = capitan.NewIntKey("interaction_count")

	// Metrics.
	FieldResonance = capitan.NewFloat32Key("resonance_ratio")
	FieldRejection = capitan.NewFloat32Key("rejection_density")
	FieldCollapse  = capitan.NewFloat32Key("semantic_collapse_index")

	// Versions.
	FieldVersion     = capitan.NewIntKey("version")
	FieldFromVersion = capitan.NewIntKey("from_version")
	FieldToVersion   = capitan.NewIntKey("to_version")
	FieldActionCount = capitan.NewIntKey("action_count")

	FieldReason   = capitan.NewStringKey("reason")
	FieldDuration = capitan.NewDurationKey("duration")
	FieldError    = capitan.NewErrorKey("error")
)
