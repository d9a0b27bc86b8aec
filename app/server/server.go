package server

import (
	"chatgate/app/client/kvstore"
	"chatgate/app/config"
	"chatgate/app/service/admission"
	"chatgate/app/service/queue"
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Server)(nil)

// Server is the thin HTTP ingress: it enqueues inbound messages and exposes
// health and stats. All policy lives in the services.
type Server struct {
	cfg          *config.Config
	app          *fiber.App
	store        kvstore.Store
	admissionSvc *admission.Service
	queueSvc     *queue.Service
}

type chatRequest struct {
	Identity string `json:"identity"`
	Message  string `json:"message"`
}

func New(di *do.Injector) (*Server, error) {
	s := &Server{
		cfg:          do.MustInvoke[*config.Config](di),
		store:        do.MustInvoke[kvstore.Store](di),
		admissionSvc: do.MustInvoke[*admission.Service](di),
		queueSvc:     do.MustInvoke[*queue.Service](di),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Post("/chat", s.handleChat)
	app.Get("/health", s.handleHealth)
	app.Get("/stats", s.handleStats)

	s.app = app

	return s, nil
}

func (s *Server) Run() {
	if err := s.app.Listen(s.cfg.Server.Addr); err != nil {
		slog.Error("HTTP server stopped", "error", err)
	}
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Identity == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "identity and message are required",
		})
	}

	s.queueSvc.Add(req.Identity, req.Message)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "queued",
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.admissionSvc.Stats(c.UserContext(), time.Now()))
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
