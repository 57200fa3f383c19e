// SPDX-License-Identifier: MIT

// Package inference defines the boundary to the segmentation inference
// engine. The engine holds the video/session state and computes per-frame
// masks; this service only forwards session identifiers and consumes the
// resulting frame sequence.
package inference

import (
	"context"
	"encoding/json"
)

// RequestTypePropagate identifies a propagation request on the engine wire.
const RequestTypePropagate = "propagate_in_video"

// PropagateRequest asks the engine to propagate masks through a video,
// starting at StartFrameIndex, for the session it already holds.
type PropagateRequest struct {
	Type            string `json:"type"`
	SessionID       string `json:"session_id"`
	StartFrameIndex int    `json:"start_frame_index"`
}

// NewPropagateRequest builds a well-formed propagation request.
func NewPropagateRequest(sessionID string, startFrameIndex int) PropagateRequest {
	return PropagateRequest{
		Type:            RequestTypePropagate,
		SessionID:       sessionID,
		StartFrameIndex: startFrameIndex,
	}
}

// FrameResult is one frame's propagation output. The mask payload is an
// opaque serialized blob owned by the engine.
type FrameResult struct {
	FrameIndex int             `json:"frame_index"`
	Results    json.RawMessage `json:"results"`
}

// Stream is a forward-only, non-restartable sequence of frame results.
// Next returns io.EOF when propagation reaches the end of the video.
type Stream interface {
	Next() (*FrameResult, error)
	Close() error
}

// Engine is the inference collaborator handle shared across the service.
type Engine interface {
	PropagateInVideo(ctx context.Context, req PropagateRequest) (Stream, error)
}
