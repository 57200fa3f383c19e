// SPDX-License-Identifier: MIT

// Package session tracks the status of background propagation jobs by
// session identifier. The registry is the only shared mutable structure in
// the service; every transition is serialized under one mutex and readers
// only ever observe complete status snapshots.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/savi-ml/savid/internal/log"
)

// State is the lifecycle state of a propagation job.
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// Terminal reports whether a state can no longer change.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Status is a snapshot of one session's propagation job.
type Status struct {
	State           State     `json:"state"`
	StartFrameIndex int       `json:"start_frame_index"`
	ResultPath      string    `json:"result_path,omitempty"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type entry struct {
	status Status
	cancel context.CancelFunc
}

// MetricsRecorder receives registry lifecycle signals.
type MetricsRecorder interface {
	IncJobStarted()
	IncJobFinished(outcome string)
	IncTransitionRejected()
}

// Registry is a concurrency-safe map of session id to job status. Entries
// live for the process lifetime; there is no eviction.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	logger   zerolog.Logger
	metrics  MetricsRecorder
	clock    func() time.Time
}

// NewRegistry returns an empty registry. metrics may be nil.
func NewRegistry(metrics MetricsRecorder) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		logger:   log.WithComponent("session"),
		metrics:  metrics,
		clock:    time.Now,
	}
}

// Start creates a PENDING entry for sessionID and stores the job's cancel
// handle. It returns false without touching the entry when a job for the
// session is already pending or running; a terminal entry is replaced by a
// fresh job (re-invocation is the caller-level retry path).
func (r *Registry) Start(sessionID string, startFrameIndex int, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[sessionID]; ok && !e.status.State.Terminal() {
		r.logger.Info().
			Str("event", "job.duplicate_suppressed").
			Str("session_id", sessionID).
			Str("state", string(e.status.State)).
			Msg("propagation already active for session")
		return false
	}

	now := r.clock()
	r.sessions[sessionID] = &entry{
		status: Status{
			State:           StatePending,
			StartFrameIndex: startFrameIndex,
			StartedAt:       now,
			UpdatedAt:       now,
		},
		cancel: cancel,
	}
	if r.metrics != nil {
		r.metrics.IncJobStarted()
	}
	r.logger.Info().
		Str("event", "job.start").
		Str("session_id", sessionID).
		Int("start_frame_index", startFrameIndex).
		Msg("propagation job registered")
	return true
}

// Get returns a snapshot of the session's status.
func (r *Registry) Get(sessionID string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return Status{}, false
	}
	return e.status, true
}

// Advance transitions PENDING to RUNNING on the first progress signal from
// the runner. It is idempotent once running and rejected on terminal states.
func (r *Registry) Advance(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if e.status.State.Terminal() {
		r.rejectLocked(sessionID, e.status.State, StateRunning)
		return
	}
	if e.status.State == StateRunning {
		return
	}
	e.status.State = StateRunning
	e.status.UpdatedAt = r.clock()
}

// Complete transitions the session to COMPLETE and records the artifact
// path. Attempts to overwrite a terminal state are rejected and logged.
func (r *Registry) Complete(sessionID, resultPath string) {
	r.finish(sessionID, StateComplete, resultPath, "")
}

// Fail transitions the session to FAILED with an error message. Attempts to
// overwrite a terminal state are rejected and logged.
func (r *Registry) Fail(sessionID, message string) {
	r.finish(sessionID, StateFailed, "", message)
}

func (r *Registry) finish(sessionID string, state State, resultPath, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if e.status.State.Terminal() {
		r.rejectLocked(sessionID, e.status.State, state)
		return
	}
	e.status.State = state
	e.status.ResultPath = resultPath
	e.status.Error = message
	e.status.UpdatedAt = r.clock()
	e.cancel = nil
	if r.metrics != nil {
		r.metrics.IncJobFinished(string(state))
	}
	r.logger.Info().
		Str("event", "job.finished").
		Str("session_id", sessionID).
		Str("state", string(state)).
		Str("result_path", resultPath).
		Str("error", message).
		Msg("propagation job finished")
}

// Cancel invokes the stored cancel handle for an active job. It reports
// whether a handle was invoked. No HTTP surface exposes this yet.
func (r *Registry) Cancel(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	var cancel context.CancelFunc
	if ok && !e.status.State.Terminal() {
		cancel = e.cancel
	}
	r.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

func (r *Registry) rejectLocked(sessionID string, have, want State) {
	if r.metrics != nil {
		r.metrics.IncTransitionRejected()
	}
	r.logger.Warn().
		Str("event", "job.transition_rejected").
		Str("session_id", sessionID).
		Str("state", string(have)).
		Str("attempted", string(want)).
		Msg("terminal state is immutable")
}
