// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the savid service.
package api

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/savi-ml/savid/internal/config"
	"github.com/savi-ml/savid/internal/log"
	"github.com/savi-ml/savid/internal/propagate"
	"github.com/savi-ml/savid/internal/session"
)

// Deps holds the collaborators the server dispatches to.
type Deps struct {
	Registry *session.Registry
	Runner   *propagate.Runner
	Streamer *propagate.Streamer

	// Query is the optional schema-driven read query layer. It is built
	// elsewhere around the shared inference-engine handle; the server only
	// mounts it when present.
	Query http.Handler
}

// Server is the HTTP API server for savid.
type Server struct {
	cfg      config.AppConfig
	registry *session.Registry
	runner   *propagate.Runner
	streamer *propagate.Streamer
	query    http.Handler
	logger   zerolog.Logger
}

// New constructs a server from configuration and dependencies.
func New(cfg config.AppConfig, deps Deps) *Server {
	return &Server{
		cfg:      cfg,
		registry: deps.Registry,
		runner:   deps.Runner,
		streamer: deps.Streamer,
		query:    deps.Query,
		logger:   log.WithComponent("api"),
	}
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.newRouter()
}
