package devserver

import (
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/vowels52/SyncUp-sub000/internal/config"
	"github.com/vowels52/SyncUp-sub000/internal/gateway"
	"github.com/vowels52/SyncUp-sub000/internal/session"
)

// Server is the local stand-in for the hosted backend: the table contract
// over HTTP, a per-table websocket change feed and JWT auth.
type Server struct {
	App  *fiber.App
	Cfg  config.Config
	GW   gateway.Gateway
	Auth *AuthService
}

func NewServer(cfg config.Config, gw gateway.Gateway) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:  app,
		Cfg:  cfg,
		GW:   gw,
		Auth: NewAuthService(gw, cfg.JWTSecret),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	registerAuthRoutes(s.App.Group("/auth"), s.Auth)

	guarded := s.App.Group("/tables", jwtMiddleware(s.Cfg.JWTSecret))
	registerTableRoutes(guarded, s.GW)

	registerRealtimeRoutes(s.App, s.GW)
}

func registerAuthRoutes(r fiber.Router, svc *AuthService) {
	r.Post("/signup", func(c *fiber.Ctx) error {
		var req SignUpRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		resp, err := svc.SignUp(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(resp)
	})

	r.Post("/signin", func(c *fiber.Ctx) error {
		var req SignInRequest
		if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "email and password required")
		}
		resp, err := svc.SignIn(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		return c.JSON(resp)
	})
}

type queryRequest struct {
	gateway.Query
}

type mutateRequest struct {
	Filter gateway.Filter `json:"filter"`
	Patch  gateway.Row    `json:"patch,omitempty"`
}

func registerTableRoutes(r fiber.Router, gw gateway.Gateway) {
	r.Post("/:table/query", func(c *fiber.Ctx) error {
		var req queryRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		rows, err := gw.Query(c.Context(), c.Params("table"), req.Query)
		if err != nil {
			return faultError(err)
		}
		return c.JSON(fiber.Map{"rows": rows})
	})

	r.Post("/:table/count", func(c *fiber.Ctx) error {
		var req mutateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		n, err := gw.Count(c.Context(), c.Params("table"), req.Filter)
		if err != nil {
			return faultError(err)
		}
		return c.JSON(fiber.Map{"count": n})
	})

	r.Post("/:table/rows", func(c *fiber.Ctx) error {
		var row gateway.Row
		if err := c.BodyParser(&row); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		inserted, err := gw.Insert(c.Context(), c.Params("table"), row)
		if err != nil {
			return faultError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(inserted)
	})

	r.Patch("/:table/rows", func(c *fiber.Ctx) error {
		var req mutateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		rows, err := gw.Update(c.Context(), c.Params("table"), req.Filter, req.Patch)
		if err != nil {
			return faultError(err)
		}
		return c.JSON(fiber.Map{"rows": rows})
	})

	r.Post("/:table/delete", func(c *fiber.Ctx) error {
		var req mutateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		rows, err := gw.Delete(c.Context(), c.Params("table"), req.Filter)
		if err != nil {
			return faultError(err)
		}
		return c.JSON(fiber.Map{"rows": rows})
	})
}

func registerRealtimeRoutes(r fiber.Router, gw gateway.Gateway) {
	r.Get("/realtime/:table", websocket.New(func(c *websocket.Conn) {
		table := c.Params("table")
		send := make(chan gateway.Event, 64)
		var sendMu sync.Mutex
		closed := false
		sub, err := gw.Subscribe(table, gateway.Filter{}, func(ev gateway.Event) {
			sendMu.Lock()
			defer sendMu.Unlock()
			if closed {
				return
			}
			// Drop when the socket writer is saturated; the client refetches.
			select {
			case send <- ev:
			default:
			}
		})
		if err != nil {
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range send {
				if err := c.WriteJSON(ev); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		sub.Close()
		sendMu.Lock()
		closed = true
		close(send)
		sendMu.Unlock()
		<-done
	}))
}

func faultError(err error) error {
	fault := gateway.Classify(err)
	switch fault.Kind {
	case gateway.FaultVanished:
		return fiber.NewError(fiber.StatusNotFound, fault.Message)
	case gateway.FaultDenied:
		return fiber.NewError(fiber.StatusForbidden, fault.Message)
	case gateway.FaultInvalid:
		return fiber.NewError(fiber.StatusBadRequest, fault.Message)
	}
	return fiber.NewError(fiber.StatusInternalServerError, fault.Message)
}

// jwtMiddleware validates bearer tokens and stores user_id in locals.
func jwtMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		s, err := session.Parse(secret, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals("user_id", s.UserID)
		return c.Next()
	}
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
