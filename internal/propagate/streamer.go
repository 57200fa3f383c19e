// SPDX-License-Identifier: MIT

// Package propagate drives propagation delivery: the synchronous chunked
// stream and the asynchronous background job.
package propagate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/savi-ml/savid/internal/inference"
	"github.com/savi-ml/savid/internal/log"
	"github.com/savi-ml/savid/internal/multipart"
)

// MetricsRecorder receives delivery metrics from both delivery modes.
type MetricsRecorder interface {
	AddFramesDelivered(mode string, n int)
	ObserveArtifactBytes(n int)
}

// Streamer pulls frame results from the engine one at a time and writes them
// to the transport as codec-framed chunks. It holds no more than one chunk in
// flight; backpressure comes from the writer.
type Streamer struct {
	Engine   inference.Engine
	Boundary string
	Metrics  MetricsRecorder
}

// Stream consumes the engine's result sequence for sessionID and emits one
// chunk per frame, flushing after each write. It returns nil when the
// sequence is exhausted. On a mid-sequence engine error the stream stops
// where it is: no partial chunk is emitted and no trailer exists, so the
// transport framing is left truncated (clients must rely on transport-level
// signals to tell exhaustion from failure).
func (s *Streamer) Stream(ctx context.Context, w io.Writer, sessionID string, startFrameIndex int) error {
	logger := log.WithComponentFromContext(ctx, "stream")

	stream, err := s.Engine.PropagateInVideo(ctx, inference.NewPropagateRequest(sessionID, startFrameIndex))
	if err != nil {
		return fmt.Errorf("start propagation: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			logger.Warn().Err(cerr).Str("session_id", sessionID).Msg("failed to close engine stream")
		}
	}()

	flusher, _ := w.(http.Flusher)
	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stream canceled after %d frames: %w", frames, err)
		}

		fr, err := stream.Next()
		if errors.Is(err, io.EOF) {
			logger.Info().
				Str("event", "stream.complete").
				Str("session_id", sessionID).
				Int("frames", frames).
				Msg("propagation stream exhausted")
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", frames, err)
		}

		body, err := json.Marshal(fr)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", fr.FrameIndex, err)
		}
		chunk := multipart.FrameChunk(fr.FrameIndex, multipart.FrameUnknown, multipart.MaskTypeRLE, body)
		if _, err := w.Write(multipart.Encode(s.Boundary, chunk)); err != nil {
			return fmt.Errorf("write frame %d: %w", fr.FrameIndex, err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		frames++
		if s.Metrics != nil {
			s.Metrics.AddFramesDelivered("stream", 1)
		}
	}
}
