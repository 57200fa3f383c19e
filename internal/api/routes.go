// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	s.applyMiddleware(r)

	r.Get("/healthy", s.handleHealthy)

	r.Post("/propagate_in_video", s.handlePropagateInVideo)
	r.Post("/background_propagate", s.handleBackgroundPropagate)
	r.Get("/propagate_status/{sessionID}", s.handlePropagateStatus)
	r.Get("/download_segments/{sessionID}", s.handleDownloadSegments)

	// Static read-only media collections. Segments are downloads, the rest
	// are inline media for the gallery UI.
	r.Handle("/gallery/*", http.StripPrefix("/gallery/", s.secureFileServer(s.cfg.GalleryDir, false)))
	r.Handle("/posters/*", http.StripPrefix("/posters/", s.secureFileServer(s.cfg.PostersDir, false)))
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", s.secureFileServer(s.cfg.UploadsDir, false)))
	r.Handle("/segments/*", http.StripPrefix("/segments/", s.secureFileServer(s.cfg.SegmentsDir, true)))

	if s.query != nil {
		r.Handle("/graphql", s.query)
	}

	return r
}
