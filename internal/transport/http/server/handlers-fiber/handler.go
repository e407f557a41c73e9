// Package handlers_fiber wires HTTP delivery components.
package handlers_fiber

import (
	"time"

	api "agent-runtime/internal/oapi"
	"agent-runtime/internal/usecase"

	"go.uber.org/zap"
)

const defaultPingInterval = 15 * time.Second

// UploadRemover deletes the files stored for a request.
type UploadRemover interface {
	Remove(key string) error
}

// Options tunes streaming behaviour.
type Options struct {
	// PingInterval is the idle SSE keep-alive period.
	PingInterval time.Duration
	// Uploads removes files of streamed requests once the stream ends.
	Uploads UploadRemover
}

var _ api.ServerInterface = (*Handler)(nil)

// Handler implements oapi.ServerInterface using service layer interfaces.
type Handler struct {
	log     *zap.SugaredLogger
	uc      usecase.InterfaceUsecase
	ping    time.Duration
	uploads UploadRemover
}

// NewHandler constructs an HTTP server with service dependencies.
func NewHandler(log *zap.SugaredLogger, usecase usecase.InterfaceUsecase, opts Options) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	return &Handler{
		log:     log,
		uc:      usecase,
		ping:    opts.PingInterval,
		uploads: opts.Uploads,
	}
}
