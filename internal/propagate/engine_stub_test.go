// SPDX-License-Identifier: MIT

package propagate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/savi-ml/savid/internal/inference"
)

// stubEngine yields a fixed frame sequence, optionally failing at the end
// or blocking until released.
type stubEngine struct {
	frames   []inference.FrameResult
	startErr error
	frameErr error
	gate     chan struct{} // when set, Next blocks on it before the first frame

	mu      sync.Mutex
	streams int
	closed  int
}

func makeFrames(n int) []inference.FrameResult {
	frames := make([]inference.FrameResult, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, inference.FrameResult{
			FrameIndex: i,
			Results:    json.RawMessage(fmt.Sprintf(`[{"object_id":0,"mask":{"counts":"r%d","size":[4,4]}}]`, i)),
		})
	}
	return frames
}

func (e *stubEngine) PropagateInVideo(_ context.Context, _ inference.PropagateRequest) (inference.Stream, error) {
	if e.startErr != nil {
		return nil, e.startErr
	}
	e.mu.Lock()
	e.streams++
	e.mu.Unlock()
	return &stubStream{engine: e}, nil
}

type stubStream struct {
	engine *stubEngine
	next   int
}

func (s *stubStream) Next() (*inference.FrameResult, error) {
	if s.engine.gate != nil && s.next == 0 {
		<-s.engine.gate
	}
	if s.next < len(s.engine.frames) {
		fr := s.engine.frames[s.next]
		s.next++
		return &fr, nil
	}
	if s.engine.frameErr != nil {
		return nil, s.engine.frameErr
	}
	return nil, io.EOF
}

func (s *stubStream) Close() error {
	s.engine.mu.Lock()
	s.engine.closed++
	s.engine.mu.Unlock()
	return nil
}
