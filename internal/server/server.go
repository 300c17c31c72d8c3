// Package server wires the Fiber HTTP/WS front (SPEC_FULL.md §4.11, §6,
// §10.6): it validates inputs, resolves auth keys, and delegates to the
// auth/vote/schedule/transcript/roommanager components. Grounded on the
// teacher's internal/server/server.go for the Fiber app construction,
// middleware stack, and graceful-shutdown lifecycle.
package server

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"eum-captions/internal/auth"
	"eum-captions/internal/config"
	"eum-captions/internal/connection"
	"eum-captions/internal/roommanager"
	"eum-captions/internal/schedule"
	"eum-captions/internal/transcript"
	"eum-captions/internal/vote"
)

const shutdownTimeout = 30 * time.Second

// Server wraps the Fiber app and the application's managers.
type Server struct {
	app *fiber.App
	cfg *config.Config
	log *zap.SugaredLogger

	auth       *auth.Store
	schedule   *schedule.Provider
	rooms      *roommanager.Manager
	transcript *transcript.Store
	votes      *vote.Tally
}

// Deps are the constructed managers the HTTP/WS surface delegates to.
type Deps struct {
	Auth       *auth.Store
	Schedule   *schedule.Provider
	Rooms      *roommanager.Manager
	Transcript *transcript.Store
	Votes      *vote.Tally
	Log        *zap.SugaredLogger
}

// New constructs the Fiber app and registers middleware and routes.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}

	app := fiber.New(fiber.Config{
		AppName:       "EUM Captions Gateway",
		ServerHeader:  "Fiber",
		StrictRouting: true,
		CaseSensitive: true,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
	})

	s := &Server{
		app:        app,
		cfg:        cfg,
		log:        deps.Log,
		auth:       deps.Auth,
		schedule:   deps.Schedule,
		rooms:      deps.Rooms,
		transcript: deps.Transcript,
		votes:      deps.Votes,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowCredentials: true,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Post("/login", s.handleLogin)
	s.app.Post("/auth", s.handleAuth)
	s.app.Post("/validate", s.handleAuth)
	s.app.Get("/room_list", s.handleRoomList)
	s.app.Get("/vote", s.handleVoteList)
	s.app.Get("/vote/:code/add", s.handleVoteAdd)
	s.app.Get("/vote/:code/remove", s.handleVoteRemove)
	s.app.Post("/transcript_list", s.handleTranscriptList)
	s.app.Post("/room/:id/transcript/:lang", s.handleCompileTranscript)
	s.app.Post("/room/:id/close", s.handleCloseRoom)

	s.app.Use("/room/:room_id/:role/:source_lang/:target_lang", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/room/:room_id/:role/:source_lang/:target_lang", websocket.New(s.handleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":              "ok",
		"active_aws_sessions": s.rooms.ActiveAWSSessions(),
	})
}

type loginRequest struct {
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "fail"})
	}

	entry, err := s.auth.Login(req.Password, req.Role)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "fail"})
	}
	return c.JSON(fiber.Map{
		"status":      "ok",
		"key":         entry.Key,
		"power":       entry.Power.String(),
		"expire_hours": time.Until(entry.Expire).Hours(),
	})
}

type keyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleAuth(c *fiber.Ctx) error {
	var req keyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "fail"})
	}
	power, ok := s.auth.Validate(req.Key, auth.PowerHost)
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "fail"})
	}
	return c.JSON(fiber.Map{"status": "valid", "power": power.String()})
}

func (s *Server) handleRoomList(c *fiber.Ctx) error {
	return c.JSON(s.rooms.GetRoomList())
}

func (s *Server) handleVoteList(c *fiber.Ctx) error {
	return c.JSON(s.votes.List())
}

func (s *Server) handleVoteAdd(c *fiber.Ctx) error {
	count, err := s.votes.AddVote(c.Params("code"))
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "fail"})
	}
	return c.JSON(fiber.Map{"count": count})
}

func (s *Server) handleVoteRemove(c *fiber.Ctx) error {
	count, err := s.votes.RemoveVote(c.Params("code"))
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "fail"})
	}
	return c.JSON(fiber.Map{"count": count})
}

func (s *Server) handleTranscriptList(c *fiber.Ctx) error {
	var req keyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "fail"})
	}

	conf, err := s.schedule.UpdateData()
	if err != nil {
		s.log.Warnw("failed to refresh schedule for transcript list", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "fail"})
	}

	events, err := s.transcript.GetAvailableTranscriptList(req.Key, conf)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "fail"})
	}
	return c.JSON(events)
}

func (s *Server) handleCompileTranscript(c *fiber.Ctx) error {
	var req keyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("")
	}

	text, archiveURL, err := s.transcript.CompileTranscript(c.Context(), req.Key, c.Params("id"), c.Params("lang"))
	if err != nil {
		s.log.Warnw("failed to compile transcript", "room_id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusServiceUnavailable).SendString("")
	}
	if archiveURL != "" {
		c.Set("X-Archive-URL", archiveURL)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(text)
}

func (s *Server) handleCloseRoom(c *fiber.Ctx) error {
	var req keyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	if _, ok := s.auth.Validate(req.Key, auth.PowerAdmin); !ok {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	if err := s.rooms.DeactivateRoom(c.Params("id")); err != nil {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	return c.SendStatus(fiber.StatusOK)
}

// handleWebSocket dispatches to the admission path matching role, closing
// with the close codes §6 specifies on every rejection.
func (s *Server) handleWebSocket(c *websocket.Conn) {
	roomID := c.Params("room_id")
	role := c.Params("role")
	sourceLang := c.Params("source_lang")
	targetLang := c.Params("target_lang")

	switch role {
	case "host":
		s.serveHost(c, roomID, sourceLang, targetLang)
	case "client":
		s.serveClient(c, roomID, targetLang)
	default:
		closeWith(c, websocket.CloseUnsupportedData, "unknown role")
	}
}

func (s *Server) serveHost(c *websocket.Conn, roomID, sourceLang, targetLang string) {
	key := c.Cookies("authenticated")
	if key == "" {
		closeWith(c, websocket.ClosePolicyViolation, "missing authenticated cookie")
		return
	}
	if _, ok := s.auth.Validate(key, auth.PowerHost); !ok {
		closeWith(c, websocket.ClosePolicyViolation, "invalid or expired key")
		return
	}

	saveTranscript, _ := strconv.ParseBool(c.Cookies(roomID + "-allow_store"))
	publicTranscript, _ := strconv.ParseBool(c.Cookies(roomID + "-allow_client_download"))

	room, err := s.rooms.ActivateRoomAsHost(context.Background(), key, roomID, sourceLang, targetLang, saveTranscript, publicTranscript)
	if err != nil {
		closeWith(c, closeCodeFor(err), err.Error())
		return
	}

	err = room.ConnectionManager().ListenToHost(c, targetLang)
	if errors.Is(err, connection.ErrHostAlreadyConnected) {
		closeWith(c, websocket.CloseUnsupportedData, err.Error())
		return
	}
	s.rooms.OnHostDisconnected(roomID)
	switch {
	case err != nil && !isNormalClose(err):
		s.log.Debugw("host connection ended", "room_id", roomID, "error", err)
	}
}

func closeCodeFor(err error) int {
	if errors.Is(err, roommanager.ErrAtCapacity) || errors.Is(err, roommanager.ErrRoomNotFound) ||
		errors.Is(err, roommanager.ErrUnsupportedSourceLang) || errors.Is(err, roommanager.ErrUnsupportedTargetLang) ||
		errors.Is(err, roommanager.ErrDoNotRecord) {
		return websocket.CloseUnsupportedData
	}
	return websocket.CloseInternalServerErr
}

func (s *Server) serveClient(c *websocket.Conn, roomID, targetLang string) {
	room, err := s.rooms.JoinRoomAsClient(roomID)
	if err != nil {
		closeWith(c, websocket.CloseUnsupportedData, err.Error())
		return
	}
	if err := room.ConnectionManager().ConnectClient(c, targetLang); err != nil && !isNormalClose(err) {
		s.log.Debugw("client connection ended", "room_id", roomID, "error", err)
	}
}

func isNormalClose(err error) bool {
	return errors.Is(err, io.EOF) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func closeWith(c *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.WriteMessage(websocket.CloseMessage, msg)
	_ = c.Close()
}

// Start runs the Fiber event loop, blocking until Shutdown is called.
func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown gracefully drains in-flight requests within the shutdown timeout.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}
