// SPDX-License-Identifier: MIT

package propagate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"github.com/savi-ml/savid/internal/fsutil"
	"github.com/savi-ml/savid/internal/inference"
	"github.com/savi-ml/savid/internal/session"
)

// Deps holds all dependencies for the background job runner.
type Deps struct {
	Logger      zerolog.Logger
	Engine      inference.Engine
	Registry    *session.Registry
	Metrics     MetricsRecorder
	SegmentsDir string
}

// Runner launches background propagation jobs. Each job runs on its own
// goroutine with a context derived from the daemon root, so it outlives the
// triggering request and stops on daemon shutdown.
type Runner struct {
	deps Deps
	base context.Context
}

// NewRunner returns a runner whose jobs are bound to base.
func NewRunner(base context.Context, deps Deps) *Runner {
	return &Runner{deps: deps, base: base}
}

// Start registers and launches a background job for sessionID. It returns
// false when a job for the session is already active; in that case no work
// is performed.
func (r *Runner) Start(sessionID string, startFrameIndex int) bool {
	ctx, cancel := context.WithCancel(r.base)
	if !r.deps.Registry.Start(sessionID, startFrameIndex, cancel) {
		cancel()
		return false
	}
	go r.run(ctx, cancel, sessionID, startFrameIndex)
	return true
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, sessionID string, startFrameIndex int) {
	defer cancel()
	logger := r.deps.Logger.With().Str("session_id", sessionID).Logger()

	// A panic anywhere in the job must fail the session, never the process.
	defer func() {
		if p := recover(); p != nil {
			logger.Error().
				Str("event", "job.panic").
				Interface("panic", p).
				Msg("background propagation panicked")
			r.deps.Registry.Fail(sessionID, fmt.Sprintf("internal error: %v", p))
		}
	}()

	path, err := r.propagate(ctx, logger, sessionID, startFrameIndex)
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "job.failed").
			Msg("background propagation failed")
		r.deps.Registry.Fail(sessionID, err.Error())
		return
	}
	r.deps.Registry.Complete(sessionID, path)
}

func (r *Runner) propagate(ctx context.Context, logger zerolog.Logger, sessionID string, startFrameIndex int) (string, error) {
	stream, err := r.deps.Engine.PropagateInVideo(ctx, inference.NewPropagateRequest(sessionID, startFrameIndex))
	if err != nil {
		return "", fmt.Errorf("start propagation: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to close engine stream")
		}
	}()

	var results []inference.FrameResult
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("job canceled after %d frames: %w", len(results), err)
		}

		fr, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("frame %d: %w", len(results), err)
		}
		if len(results) == 0 {
			r.deps.Registry.Advance(sessionID)
		}
		results = append(results, *fr)
		if r.deps.Metrics != nil {
			r.deps.Metrics.AddFramesDelivered("background", 1)
		}
	}

	path, size, err := r.writeArtifact(sessionID, results)
	if err != nil {
		return "", err
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.ObserveArtifactBytes(size)
	}
	logger.Info().
		Str("event", "job.artifact_written").
		Str("path", path).
		Int("frames", len(results)).
		Int("bytes", size).
		Msg("segment artifact written")
	return path, nil
}

// writeArtifact persists the accumulated frame results as one durable file
// under the segments root. The write is atomic: fsync on a pending file,
// then rename into place.
func (r *Runner) writeArtifact(sessionID string, results []inference.FrameResult) (string, int, error) {
	if err := os.MkdirAll(r.deps.SegmentsDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create segments dir: %w", err)
	}

	name := fsutil.SanitizeName(sessionID) + "_segments.json"
	path := filepath.Join(r.deps.SegmentsDir, name)

	data, err := json.Marshal(results)
	if err != nil {
		return "", 0, fmt.Errorf("encode results: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("create pending artifact: %w", err)
	}
	defer func() {
		// renameio removes the temp file when the replace never happened.
		_ = pending.Cleanup()
	}()

	if _, err := pending.Write(data); err != nil {
		return "", 0, fmt.Errorf("write artifact: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", 0, fmt.Errorf("atomically replace artifact: %w", err)
	}
	return path, len(data), nil
}
