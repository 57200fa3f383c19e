// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/savi-ml/savid/internal/log"
	"github.com/savi-ml/savid/internal/metrics"
	"golang.org/x/text/unicode/norm"
)

// secureFileServer serves files from root with checks against path
// traversal, symlink escapes and directory listing. Every resolution
// failure is classified internally (logged and counted by reason) but
// surfaced uniformly as "resource not found" so clients cannot probe the
// directory layout.
func (s *Server) secureFileServer(root string, asAttachment bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "files")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			logger.Warn().Str("event", "file_req.denied").Str("path", r.URL.Path).Str("reason", "method_not_allowed").Msg("method not allowed")
			metrics.RecordFileRequestDenied("method_not_allowed")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		path := r.URL.Path
		if isPathTraversal(path) {
			logger.Warn().Str("event", "file_req.denied").Str("path", path).Str("reason", "path_escape").Msg("detected traversal sequence")
			metrics.RecordFileRequestDenied("path_escape")
			writeResourceNotFound(w)
			return
		}
		if path == "" || strings.HasSuffix(path, "/") {
			logger.Warn().Str("event", "file_req.denied").Str("path", path).Str("reason", "directory_listing").Msg("directory listing forbidden")
			metrics.RecordFileRequestDenied("directory_listing")
			writeResourceNotFound(w)
			return
		}

		absRoot, err := filepath.Abs(root)
		if err != nil {
			logger.Error().Err(err).Str("event", "file_req.internal_error").Msg("could not get absolute root")
			metrics.RecordFileRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		fullPath := filepath.Join(absRoot, path)

		realPath, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Info().Str("event", "file_req.not_found").Str("path", fullPath).Msg("file not found")
				metrics.RecordFileRequestDenied("not_found")
				writeResourceNotFound(w)
				return
			}
			logger.Error().Err(err).Str("event", "file_req.internal_error").Str("path", fullPath).Msg("could not evaluate symlinks")
			metrics.RecordFileRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		realRoot, err := filepath.EvalSymlinks(absRoot)
		if err != nil {
			logger.Error().Err(err).Str("event", "file_req.internal_error").Msg("could not evaluate symlinks on root")
			metrics.RecordFileRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		// Containment check on the symlink-resolved path, so a link inside
		// the root cannot point outside it.
		relPath, err := filepath.Rel(realRoot, realPath)
		if err != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
			logger.Warn().
				Str("event", "file_req.denied").
				Str("path", path).
				Str("resolved_path", realPath).
				Str("root", realRoot).
				Str("reason", "path_escape").
				Msg("path escapes serving root")
			metrics.RecordFileRequestDenied("path_escape")
			writeResourceNotFound(w)
			return
		}

		info, err := os.Stat(realPath)
		if err != nil {
			logger.Error().Err(err).Str("event", "file_req.internal_error").Str("path", realPath).Msg("could not stat real path")
			metrics.RecordFileRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if info.IsDir() {
			logger.Warn().Str("event", "file_req.denied").Str("path", path).Str("reason", "directory_listing").Msg("resolved path is a directory")
			metrics.RecordFileRequestDenied("directory_listing")
			writeResourceNotFound(w)
			return
		}

		f, err := os.Open(realPath) // #nosec G304 -- realPath is validated to reside inside the root
		if err != nil {
			logger.Error().Err(err).Str("event", "file_req.internal_error").Str("path", realPath).Msg("could not open file for serving")
			metrics.RecordFileRequestDenied("internal_error")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				logger.Warn().Err(cerr).Str("path", realPath).Msg("failed to close file")
			}
		}()

		if asAttachment {
			w.Header().Set("Content-Disposition", `attachment; filename="`+info.Name()+`"`)
		}

		logger.Info().Str("event", "file_req.allowed").Str("path", path).Msg("serving file")
		metrics.RecordFileRequestAllowed()
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// isPathTraversal performs robust checks against path traversal attempts.
// It decodes the input multiple times to catch double-encoding, applies
// Unicode normalization, and searches for dangerous sequences including NULs.
func isPathTraversal(p string) bool {
	decoded := p
	// Attempt multiple decode passes to catch double/triple encodings
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		} else if d2, err2 := url.QueryUnescape(decoded); err2 == nil {
			decoded = d2
		}
		if decoded == prev {
			break
		}
	}

	dangerSubstrings := []string{
		"..",        // parent traversal
		"..\\",      // windows-style backslash
		"%00",       // encoded NUL
		"%c0%ae",    // overlong UTF-8 for '.'
		"%e0%80%ae", // another overlong variant
	}
	// Scan both the raw and the decoded form: overlong sequences decode to
	// invalid bytes that no longer match their percent form.
	for _, candidate := range []string{strings.ToLower(p), strings.ToLower(decoded)} {
		for _, pat := range dangerSubstrings {
			if strings.Contains(candidate, pat) {
				return true
			}
		}
	}
	if strings.IndexByte(decoded, 0x00) >= 0 {
		return true
	}

	// Normalize and check again for dot-dot
	normalized := strings.ToLower(norm.NFC.String(decoded))
	return strings.Contains(normalized, "..")
}
