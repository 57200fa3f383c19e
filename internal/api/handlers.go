// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/savi-ml/savid/internal/fsutil"
	"github.com/savi-ml/savid/internal/log"
	"github.com/savi-ml/savid/internal/multipart"
)

// propagateRequest is the body of both propagation endpoints. The start
// frame index defaults to 0 when absent.
type propagateRequest struct {
	SessionID       string `json:"session_id"`
	StartFrameIndex *int   `json:"start_frame_index"`
}

func decodePropagateRequest(r *http.Request) (sessionID string, startFrameIndex int, err error) {
	var req propagateRequest
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		return "", 0, fmt.Errorf("invalid request body: %w", err)
	}
	if req.SessionID == "" {
		return "", 0, errors.New("session_id is required")
	}
	if req.StartFrameIndex != nil {
		if *req.StartFrameIndex < 0 {
			return "", 0, fmt.Errorf("start_frame_index must be non-negative, got %d", *req.StartFrameIndex)
		}
		startFrameIndex = *req.StartFrameIndex
	}
	return req.SessionID, startFrameIndex, nil
}

func (s *Server) handleHealthy(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePropagateInVideo streams codec-framed per-frame results directly on
// the response. Once the multipart content type is committed, a mid-stream
// engine failure can only truncate the stream; there is no error trailer.
func (s *Server) handlePropagateInVideo(w http.ResponseWriter, r *http.Request) {
	sessionID, startFrameIndex, err := decodePropagateRequest(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	ctx := log.ContextWithSessionID(r.Context(), sessionID)
	logger := log.WithComponentFromContext(ctx, "api")

	w.Header().Set("Content-Type", multipart.MediaType(s.cfg.Boundary))
	w.WriteHeader(http.StatusOK)

	if err := s.streamer.Stream(ctx, w, sessionID, startFrameIndex); err != nil {
		logger.Warn().
			Err(err).
			Str("event", "stream.truncated").
			Msg("propagation stream ended with error")
	}
}

func (s *Server) handleBackgroundPropagate(w http.ResponseWriter, r *http.Request) {
	sessionID, startFrameIndex, err := decodePropagateRequest(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	started := s.runner.Start(sessionID, startFrameIndex)
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

func (s *Server) handlePropagateStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	status, ok := s.registry.Get(sessionID)
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleDownloadSegments resolves a completed session to its artifact and
// streams it as an attachment. Only the filename component of the recorded
// result path is looked up, confined to the segments root.
func (s *Server) handleDownloadSegments(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	logger := log.WithComponentFromContext(r.Context(), "api")

	status, ok := s.registry.Get(sessionID)
	if !ok {
		writeNotFound(w)
		return
	}
	if status.ResultPath == "" {
		writeNotReady(w)
		return
	}

	name := filepath.Base(status.ResultPath)
	path, err := fsutil.ConfineRelPath(s.cfg.SegmentsDir, name)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("event", "download.denied").
			Str("session_id", sessionID).
			Str("result_path", status.ResultPath).
			Msg("artifact path escapes segments root")
		writeResourceNotFound(w)
		return
	}
	if err := fsutil.IsRegularFile(path); err != nil {
		logger.Warn().
			Err(err).
			Str("event", "download.missing").
			Str("session_id", sessionID).
			Str("path", path).
			Msg("artifact missing on disk")
		writeResourceNotFound(w)
		return
	}

	f, err := os.Open(path) // #nosec G304 -- path is confined to the segments root
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("could not open artifact")
		writeResourceNotFound(w)
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Warn().Err(cerr).Str("path", path).Msg("failed to close artifact")
		}
	}()

	info, err := f.Stat()
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("could not stat artifact")
		writeResourceNotFound(w)
		return
	}

	setDownloadHeaders(w, name, info.Size(), info.ModTime())
	http.ServeContent(w, r, name, info.ModTime(), f)
}
