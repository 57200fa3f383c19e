// SPDX-License-Identifier: MIT

package propagate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/savi-ml/savid/internal/inference"
	"github.com/savi-ml/savid/internal/multipart"
)

func TestStreamerOrderPreserved(t *testing.T) {
	engine := &stubEngine{frames: makeFrames(3)}
	s := &Streamer{Engine: engine, Boundary: "frame"}

	rec := httptest.NewRecorder()
	if err := s.Stream(context.Background(), rec, "s1", 0); err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	chunks, err := multipart.Split(rec.Body.Bytes(), "frame")
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("stream carried %d chunks, want 3", len(chunks))
	}

	for i, c := range chunks {
		var fr inference.FrameResult
		if err := json.Unmarshal(c.Body, &fr); err != nil {
			t.Fatalf("chunk %d: decode body: %v", i, err)
		}
		if fr.FrameIndex != i {
			t.Errorf("chunk %d carries frame %d, want %d (order not preserved)", i, fr.FrameIndex, i)
		}
	}

	if engine.closed != 1 {
		t.Errorf("engine stream closed %d times, want 1", engine.closed)
	}
}

func TestStreamerRequiredHeaders(t *testing.T) {
	engine := &stubEngine{frames: makeFrames(1)}
	s := &Streamer{Engine: engine, Boundary: "frame"}

	rec := httptest.NewRecorder()
	if err := s.Stream(context.Background(), rec, "s1", 0); err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	chunks, err := multipart.Split(rec.Body.Bytes(), "frame")
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	headers := map[string]string{}
	for _, h := range chunks[0].Headers {
		headers[h.Key] = h.Value
	}
	want := map[string]string{
		multipart.HeaderContentType:  multipart.ContentTypeJSON,
		multipart.HeaderFrameCurrent: "0",
		multipart.HeaderFrameTotal:   "-1",
		multipart.HeaderMaskType:     multipart.MaskTypeRLE,
	}
	for k, v := range want {
		if headers[k] != v {
			t.Errorf("header %s = %q, want %q", k, headers[k], v)
		}
	}
}

func TestStreamerTruncatesOnEngineError(t *testing.T) {
	engine := &stubEngine{frames: makeFrames(2), frameErr: errors.New("tracker lost state")}
	s := &Streamer{Engine: engine, Boundary: "frame"}

	rec := httptest.NewRecorder()
	err := s.Stream(context.Background(), rec, "s1", 0)
	if err == nil {
		t.Fatal("Stream() = nil error, want engine failure")
	}

	// Everything emitted before the failure is complete chunks; no partial
	// chunk follows.
	chunks, splitErr := multipart.Split(rec.Body.Bytes(), "frame")
	if splitErr != nil {
		t.Fatalf("emitted stream is not cleanly framed: %v", splitErr)
	}
	if len(chunks) != 2 {
		t.Errorf("stream carried %d chunks before failure, want 2", len(chunks))
	}
}

func TestStreamerEngineStartError(t *testing.T) {
	engine := &stubEngine{startErr: errors.New("unknown session")}
	s := &Streamer{Engine: engine, Boundary: "frame"}

	rec := httptest.NewRecorder()
	if err := s.Stream(context.Background(), rec, "nope", 0); err == nil {
		t.Fatal("Stream() = nil error, want start failure")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("bytes written despite start failure: %q", rec.Body.String())
	}
}

func TestStreamerStopsOnContextCancel(t *testing.T) {
	engine := &stubEngine{frames: makeFrames(1)}
	s := &Streamer{Engine: engine, Boundary: "frame"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	if err := s.Stream(ctx, rec, "s1", 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("Stream() error = %v, want context.Canceled", err)
	}
}
