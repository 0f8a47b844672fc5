package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/app/service"
	httpUtil "github.com/sifan077/PowerLink/internal/http/util"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger    *zap.Logger
	Allocator *service.Allocator
	Resolver  *service.Resolver
	Admin     *service.Admin
	BaseURL   string
	// ShortenLimiter, when set, gates link creation.
	ShortenLimiter fiber.Handler
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger         *zap.Logger
	allocator      *service.Allocator
	resolver       *service.Resolver
	admin          *service.Admin
	baseURL        string
	shortenLimiter fiber.Handler
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:         logger,
		allocator:      deps.Allocator,
		resolver:       deps.Resolver,
		admin:          deps.Admin,
		baseURL:        strings.TrimRight(deps.BaseURL, "/"),
		shortenLimiter: deps.ShortenLimiter,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	if h.shortenLimiter != nil {
		api.Post("/shorten", h.shortenLimiter, h.Shorten)
	} else {
		api.Post("/shorten", h.Shorten)
	}
	api.Get("/check/:code", h.Check)
	api.Get("/stats/:code", h.Stats)
	api.Get("/preview/:code", h.Preview)
	api.Delete("/links", h.BulkDelete)
}

type shortenRequest struct {
	URL           string `json:"url"`
	CustomCode    string `json:"custom_code"`
	ExpiresInDays int    `json:"expires_in_days"`
	Password      string `json:"password"`
	MaxClicks     int64  `json:"max_clicks"`
}

type shortenResponse struct {
	ShortURL    string     `json:"short_url"`
	Code        string     `json:"code"`
	Destination string     `json:"destination"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Shorten handles POST /api/shorten.
func (h *APIHandler) Shorten(c *fiber.Ctx) error {
	var req shortenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	link, err := h.allocator.Allocate(userContext(c), service.AllocateInput{
		Code:            req.CustomCode,
		Destination:     req.URL,
		ExpiryDays:      req.ExpiresInDays,
		Password:        req.Password,
		MaxClicks:       req.MaxClicks,
		CreatorIdentity: httpUtil.HashIdentity(httpUtil.ClientIP(c)),
	})
	if err != nil {
		return h.allocateError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(shortenResponse{
		ShortURL:    fmt.Sprintf("%s/%s", h.baseURL, link.Code),
		Code:        link.Code,
		Destination: link.Destination,
		ExpiresAt:   link.ExpiresAt,
		CreatedAt:   link.CreatedAt,
	})
}

func (h *APIHandler) allocateError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrValidationFailed),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrReservedCode):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrCodeTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrAllocationExhausted):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "could not allocate a code right now, please retry",
		})
	default:
		h.logger.Error("allocation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}

// Check handles GET /api/check/:code.
func (h *APIHandler) Check(c *fiber.Ctx) error {
	availability, err := h.allocator.CheckAvailability(userContext(c), c.Params("code"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCode) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"available": false,
				"reason":    "invalid",
			})
		}
		h.logger.Error("availability check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	if availability == service.AvailabilityAvailable {
		return c.JSON(fiber.Map{"available": true})
	}
	return c.JSON(fiber.Map{
		"available": false,
		"reason":    availability.String(),
	})
}

// Stats handles GET /api/stats/:code.
func (h *APIHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.admin.Stats(userContext(c), c.Params("code"))
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "link not found"})
		}
		h.logger.Error("stats lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	return c.JSON(fiber.Map{
		"code":        stats.Code,
		"short_url":   fmt.Sprintf("%s/%s", h.baseURL, stats.Code),
		"destination": stats.Destination,
		"created_at":  stats.CreatedAt,
		"expires_at":  stats.ExpiresAt,
		"click_count": stats.ClickCount,
		"max_clicks":  stats.MaxClicks,
	})
}

// Preview handles GET /api/preview/:code. Gated links are reported as such
// without revealing the destination.
func (h *APIHandler) Preview(c *fiber.Ctx) error {
	code := c.Params("code")
	res, err := h.resolver.ResolveRecord(userContext(c), code)
	if err != nil {
		h.logger.Error("preview failed", zap.Error(err), zap.String("code", code))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	switch res.State {
	case service.StateNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "link not found"})
	case service.StateExpired:
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "link expired"})
	}

	if res.Gated {
		return c.JSON(fiber.Map{"code": code, "gated": true})
	}
	return c.JSON(fiber.Map{
		"code":        code,
		"destination": res.Destination,
	})
}

type bulkDeleteRequest struct {
	Codes []string `json:"codes"`
}

// BulkDelete handles DELETE /api/links.
func (h *APIHandler) BulkDelete(c *fiber.Ctx) error {
	var req bulkDeleteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if len(req.Codes) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "codes is required",
		})
	}

	deleted, notFound, err := h.admin.BulkDelete(userContext(c), req.Codes)
	if err != nil {
		h.logger.Error("bulk delete failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	return c.JSON(fiber.Map{
		"deleted":   deleted,
		"not_found": notFound,
	})
}

func userContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
