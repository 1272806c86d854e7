package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"projectstore/internal/auth"
	"projectstore/internal/health"
	"projectstore/internal/reconcile"
	"projectstore/internal/storage"
)

// Authenticator issues and checks bearer tokens.
type Authenticator interface {
	Login(username, password string) (*auth.Token, error)
	Verify(token string) (string, error)
}

// Scanner runs an orphan scan.
type Scanner interface {
	Scan(ctx context.Context, opt reconcile.Options) (*reconcile.Report, error)
}

// NamespaceFunc creates the storage namespace (bucket or table) if missing.
type NamespaceFunc func(ctx context.Context) error

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login godoc
// @Summary Obtain a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body loginRequest true "Admin credentials"
// @Success 200 {object} auth.Token
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Router /auth/login [post]
func Login(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req loginRequest
		if err := c.BodyParser(&req); err != nil || req.Username == "" || req.Password == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "username and password are required")
		}
		tok, err := a.Login(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return unauthorized(c, "invalid credentials")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(tok)
	}
}

// HealthCheck godoc
// @Summary Storage health
// @Tags system
// @Produce json
// @Success 200 {object} health.Report
// @Failure 503 {object} health.Report
// @Router /health [get]
func HealthCheck(probe *health.Probe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rep := probe.Check(c.UserContext())
		status, label := fiber.StatusOK, "healthy"
		if !rep.Healthy() {
			status, label = fiber.StatusServiceUnavailable, "unhealthy"
		}
		return c.Status(status).JSON(fiber.Map{"status": label, "storage": rep})
	}
}

// LivenessProbe answers 200 while the process is up.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// Reconcile godoc
// @Summary Scan the namespace for orphaned blobs
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param dry_run query bool false "Report without deleting"
// @Success 200 {object} reconcile.Report
// @Failure 503 {object} errorPayload
// @Router /admin/reconcile [post]
func Reconcile(s Scanner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s == nil {
			return writeError(c, fiber.StatusNotImplemented, "NOT_SUPPORTED", "reconcile is only available for object storage")
		}
		rep, err := s.Scan(c.UserContext(), reconcile.Options{DryRun: c.QueryBool("dry_run", false)})
		if err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", err.Error())
		}
		return c.JSON(rep)
	}
}

// EnsureNamespace godoc
// @Summary Create the storage namespace if missing
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /admin/namespace [post]
func EnsureNamespace(fn NamespaceFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if fn == nil {
			return writeError(c, fiber.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", storage.ErrNotConfigured.Error())
		}
		if err := fn(c.UserContext()); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", err.Error())
		}
		return c.JSON(fiber.Map{"status": "ready"})
	}
}
