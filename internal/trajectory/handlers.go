package trajectory

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	ContextCookie = "vae_ctx"
	ContextHeader = "X-Operator-Context"
	contextLocal  = "operator_ctx"
)

// OperatorContext resolves the operator context id from the header or the
// cookie, issuing a new cookie on first contact, and stores it in locals.
func OperatorContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(ContextHeader)
		if id == "" {
			id = c.Cookies(ContextCookie)
		}
		if id == "" {
			id = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     ContextCookie,
				Value:    id,
				Path:     "/",
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}
		c.Locals(contextLocal, id)
		return c.Next()
	}
}

func contextID(c *fiber.Ctx) string {
	id, _ := c.Locals(contextLocal).(string)
	return id
}

func RegisterRoutes(r fiber.Router, rec *Recorder) {
	r.Use(OperatorContext())

	r.Post("/start", func(c *fiber.Ctx) error {
		var req struct {
			Name string `json:"name"`
		}
		if err := parseBody(c, &req); err != nil {
			return err
		}
		session, err := rec.Start(c.UserContext(), contextID(c), req.Name)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"ok": true, "id": session.ID, "name": session.Name})
	})

	r.Post("/point", func(c *fiber.Ctx) error {
		var req PointInput
		if err := parseBody(c, &req); err != nil {
			return err
		}
		if err := rec.Point(c.UserContext(), contextID(c), req); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	r.Post("/stop", func(c *fiber.Ctx) error {
		if err := rec.Stop(c.UserContext(), contextID(c)); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	r.Get("/", func(c *fiber.Ctx) error {
		sessions, err := rec.ListSessions(c.UserContext())
		if err != nil {
			return httpError(err)
		}
		items := make([]sessionItem, 0, len(sessions))
		for _, s := range sessions {
			items = append(items, toSessionItem(s))
		}
		return c.JSON(fiber.Map{"ok": true, "items": items})
	})

	r.Get("/active", func(c *fiber.Ctx) error {
		session, ok, err := rec.Active(c.UserContext(), contextID(c))
		if err != nil {
			return httpError(err)
		}
		if !ok {
			return c.JSON(fiber.Map{"ok": true, "active": nil})
		}
		return c.JSON(fiber.Map{"ok": true, "active": toSessionItem(session)})
	})

	r.Get("/:id/points", func(c *fiber.Ctx) error {
		points, err := rec.ListPoints(c.UserContext(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		items := make([]pointItem, 0, len(points))
		for _, p := range points {
			items = append(items, toPointItem(p))
		}
		return c.JSON(fiber.Map{"ok": true, "points": items})
	})
}

// parseBody decodes a JSON body; an empty body is an empty object.
func parseBody(c *fiber.Ctx, out any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "payload inválido")
	}
	return nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNoActiveSession),
		errors.Is(err, ErrStaleSession):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
