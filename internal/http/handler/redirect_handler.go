package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/service"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger   *zap.Logger
	Resolver *service.Resolver
	Policy   *service.AccessPolicy
}

// RedirectHandler serves the resolution flow: cache-aside lookup, access
// gating, and the final redirect.
type RedirectHandler struct {
	logger   *zap.Logger
	resolver *service.Resolver
	policy   *service.AccessPolicy
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:   logger,
		resolver: deps.Resolver,
		policy:   deps.Policy,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:code", h.Resolve)
	router.Post("/:code", h.Resolve)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "PowerLink",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET/POST /:code. Ungated links served from the cache skip
// the access policy entirely; anything loaded from the store passes through
// it, so a gate can never be bypassed via the cache.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link code",
		})
	}

	ctx := userContext(c)
	res, err := h.resolver.ResolveRecord(ctx, code)
	if err != nil {
		h.logger.Error("failed to resolve link", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	switch res.State {
	case service.StateNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "short link not found",
		})
	case service.StateExpired:
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": "link expired",
		})
	}

	// Cache fast path: ungated by construction.
	if res.Link == nil {
		h.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", res.Destination))
		return c.Redirect(res.Destination, fiber.StatusFound)
	}

	decision := h.policy.Evaluate(ctx, res.Link, suppliedPassword(c))
	if !decision.Allowed {
		status := fiber.StatusUnauthorized
		return c.Status(status).JSON(fiber.Map{
			"error":  "access denied",
			"reason": string(decision.Reason),
		})
	}

	if decision.LimitReached {
		// Advisory: this request is served; the next resolution of this code
		// reports it as expired.
		h.logger.Debug("link click limit reached", zap.String("code", code))
	}

	h.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", decision.Destination))
	return c.Redirect(decision.Destination, fiber.StatusFound)
}

type unlockRequest struct {
	Password string `json:"password"`
}

// suppliedPassword pulls a password from the JSON body (POST) or query (GET).
func suppliedPassword(c *fiber.Ctx) *string {
	var req unlockRequest
	if err := c.BodyParser(&req); err == nil && req.Password != "" {
		return &req.Password
	}
	if pw := c.Query("password"); pw != "" {
		return &pw
	}
	return nil
}
