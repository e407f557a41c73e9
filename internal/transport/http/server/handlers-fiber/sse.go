package handlers_fiber

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"agent-runtime/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// sseWriter frames server-sent events. Writes are serialized with the
// keep-alive pings.
type sseWriter struct {
	mu     sync.Mutex
	w      *bufio.Writer
	cancel context.CancelFunc
}

func (s *sseWriter) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(frame); err != nil {
		s.cancel()
		return err
	}
	if err := s.w.Flush(); err != nil {
		s.cancel()
		return err
	}
	return nil
}

// event writes a named event. id is omitted when zero.
func (s *sseWriter) event(id int64, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame := ""
	if id > 0 {
		frame = "id: " + strconv.FormatInt(id, 10) + "\n"
	}
	return s.write(fmt.Sprintf("%sevent: %s\ndata: %s\n\n", frame, typ, payload))
}

// data writes an unnamed event, as the OpenAI streaming format expects.
func (s *sseWriter) data(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write("data: " + string(payload) + "\n\n")
}

func (s *sseWriter) done() error {
	return s.write("data: [DONE]\n\n")
}

func (s *sseWriter) keepAlive(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.write(": ping\n\n"); err != nil {
				return
			}
		}
	}
}

// stream switches the response to SSE and runs fn once fiber starts writing
// the body. fn must not touch c. The context handed to fn is cancelled when
// the client goes away.
func (h *Handler) stream(c *fiber.Ctx, log *zap.SugaredLogger, fn func(ctx context.Context, sw *sseWriter)) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	c.Status(fiber.StatusOK)

	parent := c.UserContext()
	ping := h.ping
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		metrics.StreamOpened()
		defer metrics.StreamClosed()

		ctx, cancel := context.WithCancel(parent)
		sw := &sseWriter{w: w, cancel: cancel}
		pinged := make(chan struct{})
		go func() {
			defer close(pinged)
			sw.keepAlive(ctx, ping)
		}()

		fn(ctx, sw)
		aborted := ctx.Err() != nil
		cancel()
		<-pinged
		log.Debugw("stream closed", "aborted", aborted)
	}))
	return nil
}
