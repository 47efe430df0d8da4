package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/i474232898/weather-stream/internal/common"
	"github.com/i474232898/weather-stream/internal/stream"
	"github.com/i474232898/weather-stream/internal/weather"
)

// RegisterStreamRoutes wires the server-sent events endpoints.
func RegisterStreamRoutes(app *fiber.App, service *weather.Service, manager *stream.Manager, logger *zap.Logger) {
	h := &streamHandler{
		service: service,
		manager: manager,
		logger:  logger.Named("sse"),
	}

	app.Get("/weather/stream/:zip", h.stream)
	app.Get("/weather/status", h.status)
	app.Post("/weather/heartbeat/:id", h.heartbeat)
}

type streamHandler struct {
	service *weather.Service
	manager *stream.Manager
	logger  *zap.Logger
}

func (h *streamHandler) stream(c *fiber.Ctx) error {
	zip := c.Params("zip")
	if err := validate.Var(zip, "required,numeric,len=5"); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid ZIP code")
	}

	loc, err := h.service.ResolveLocation(c.UserContext(), zip)
	if err != nil {
		if errors.Is(err, weather.ErrLocationNotFound) {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown ZIP code %s", zip))
		}
		return toFiberError(err)
	}

	conn, err := h.manager.Register(uuid.NewString(), loc.Key, stream.Meta{
		Query:        zip,
		LocationName: loc.Name,
	}, common.SplitCSV(c.Query("alert_types")))
	if err != nil {
		if errors.Is(err, stream.ErrTooManyConnections) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "too many stream connections")
		}
		return err
	}

	logger := h.logger.With(zap.String("connection_id", conn.ID), zap.String("location", loc.Key))
	logger.Info("stream opened", zap.String("zip", zip), zap.Strings("alert_types", conn.AlertCategories))

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	c.Set("X-Connection-ID", conn.ID)

	// The request context is recycled once the handler returns, so the
	// stream gets its own. A failed write ends it on a disconnect.
	ctx, cancel := context.WithCancel(context.Background())
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		err := h.manager.Stream(ctx, conn.ID, func(ev stream.Event) error {
			return writeEvent(w, ev)
		})
		if err != nil {
			logger.Debug("stream ended", zap.Error(err))
		}
	}))
	return nil
}

func (h *streamHandler) status(c *fiber.Ctx) error {
	return c.JSON(h.manager.Status())
}

// heartbeat always answers ok; unknown ids are a no-op.
func (h *streamHandler) heartbeat(c *fiber.Ctx) error {
	id := c.Params("id")
	if !h.manager.Heartbeat(id) {
		h.logger.Debug("heartbeat for unknown connection", zap.String("connection_id", id))
	}
	return c.JSON(fiber.Map{"status": "ok", "connection_id": id})
}

// writeEvent frames ev as one server-sent event and flushes it.
func writeEvent(w *bufio.Writer, ev stream.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind(), data); err != nil {
		return err
	}
	return w.Flush()
}
