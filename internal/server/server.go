package server

import (
	"errors"
	"fmt"

	"github.com/fiemcasals/controlador/internal/camera"
	"github.com/fiemcasals/controlador/internal/config"
	"github.com/fiemcasals/controlador/internal/logging"
	"github.com/fiemcasals/controlador/internal/metrics"
	"github.com/fiemcasals/controlador/internal/relay"
	"github.com/fiemcasals/controlador/internal/stream"
	"github.com/fiemcasals/controlador/internal/trajectory"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Server struct {
	App       *fiber.App
	Cfg       config.Config
	Redis     *redis.Client
	Stream    *stream.Hub
	Pump      *camera.Pump
	Recorder  *trajectory.Recorder
	Forwarder *relay.Forwarder
	Store     trajectory.Store
}

// Deps are the external resources the server is built around. Nil Store
// means an in-memory store; nil Source means no camera.
type Deps struct {
	Store    trajectory.Store
	Redis    *redis.Client
	Source   camera.FrameSource
	Detector camera.Detector
	Logger   zerolog.Logger
}

func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	if cfg.LogRequests {
		app.Use(logger.New(logger.Config{Output: deps.Logger}))
	}

	store := deps.Store
	if store == nil {
		store = trajectory.NewMemoryStore()
	}

	pump, err := camera.NewPump(deps.Source, deps.Detector, camera.Options{
		DefaultIndex:   cfg.CameraIndex,
		DefaultFPS:     cfg.CameraFPS,
		JPEGQuality:    cfg.CameraJPEGQuality,
		FailureBackoff: cfg.CameraFailureBackoff,
		ReopenInterval: cfg.CameraReopenInterval,
		Stereo:         cfg.CameraStereo,
	}, logging.Component(deps.Logger, "camera"))
	if err != nil {
		return nil, fmt.Errorf("camera pump: %w", err)
	}

	link := relay.NewVehicleLink(cfg.VehicleWSURL, cfg.VehicleUDPAddr, cfg.VehicleConnectTimeout)

	s := &Server{
		App:       app,
		Cfg:       cfg,
		Redis:     deps.Redis,
		Stream:    stream.NewHub(deps.Redis, logging.Component(deps.Logger, "bus")),
		Pump:      pump,
		Recorder:  trajectory.NewRecorder(store, logging.Component(deps.Logger, "recorder")),
		Forwarder: relay.NewForwarder(link, cfg.VehicleMaxInflight, cfg.VehicleConnectTimeout, logging.Component(deps.Logger, "forwarder")),
		Store:     store,
	}

	registerRoutes(s, relay.New(s.Stream, s.Forwarder, logging.Component(deps.Logger, "relay")))
	return s, nil
}

func registerRoutes(s *Server, commandRelay *relay.Relay) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	relay.RegisterRoutes(s.App, commandRelay)
	camera.RegisterRoutes(s.App, s.Pump)
	trajectory.RegisterRoutes(s.App.Group("/api/recorridos"), s.Recorder)
}

// Close releases everything the server owns except the injected store and
// redis client, which belong to the caller.
func (s *Server) Close() error {
	err := s.Pump.Close()
	s.Stream.Close()
	s.Forwarder.Wait()
	return err
}

// errorHandler renders every error as {"ok":false,"error":"..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"ok": false, "error": err.Error()})
}
