// Package handlers wires the catalog pipeline to the HTTP surface.
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"outfit2pdf/internal/chrome"
	"outfit2pdf/internal/images"
	"outfit2pdf/internal/layout"
	"outfit2pdf/internal/mail"
	"outfit2pdf/internal/outfit"
	"outfit2pdf/internal/render"
	u "outfit2pdf/internal/utils"
)

// Response is the inbound API contract: a definitive success or failure plus
// advisory warnings for degraded images.
type Response struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
}

// ImageResolver resolves every item's image concurrently, substituting the
// placeholder and reporting one warning per failure.
type ImageResolver interface {
	ResolveAll(ctx context.Context, items []outfit.Item) ([]*images.Asset, []string)
}

// DocumentRenderer turns pages into a single PDF binary.
type DocumentRenderer interface {
	Render(pages []layout.Page, description string) ([]byte, error)
}

// Deliverer sends the PDF to one recipient.
type Deliverer interface {
	Deliver(pdf []byte, recipient, subject, body string) (*mail.Receipt, error)
}

// CatalogService bundles configuration and pipeline dependencies.
type CatalogService struct {
	Config     *u.Config
	Redis      *redis.Client
	Resolver   ImageResolver
	Renderer   DocumentRenderer
	Dispatcher Deliverer
}

// NewCatalogService wires the production pipeline: HTTP image resolver with
// the shared background remover, Chrome-backed renderer, SMTP dispatcher.
func NewCatalogService(cfg u.Config, rdb *redis.Client, remover images.BackgroundRemover) *CatalogService {
	return &CatalogService{
		Config:     &cfg,
		Redis:      rdb,
		Resolver:   images.NewResolver(cfg, remover),
		Renderer:   render.NewRenderer(cfg),
		Dispatcher: mail.NewDispatcher(cfg),
	}
}

// HandleGenerate runs the full pipeline for one request: validate, resolve
// images, paginate, render, deliver. Image failures degrade to placeholders
// and warnings; everything else is a definitive error.
func (svc *CatalogService) HandleGenerate(c *fiber.Ctx) error {
	var req outfit.DeliveryRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	if err := outfit.Validate(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}
	if n := len(req.Outfit.Items); n > svc.Config.Limits.MaxItems {
		return respondError(c, fiber.StatusBadRequest,
			"Too many items: "+strconv.Itoa(n)+" exceeds limit "+strconv.Itoa(svc.Config.Limits.MaxItems))
	}

	requestID := c.Get("X-Request-ID")
	u.Info("Catalog request accepted", "recipient", req.Email, "items", len(req.Outfit.Items), "request_id", requestID)

	pdf, warnings, status, msg := svc.buildPDF(c, &req.Outfit)
	if pdf == nil {
		return respondError(c, status, msg)
	}

	subject, body := deliveryText(req.Outfit.Description)
	if _, err := svc.Dispatcher.Deliver(pdf, req.Email, subject, body); err != nil {
		return respondDeliveryError(c, err)
	}

	u.Info("Catalog delivered", "recipient", req.Email, "pdf_bytes", len(pdf), "warnings", len(warnings), "request_id", requestID)
	return c.JSON(Response{
		Status:   "success",
		Message:  "PDF catalog sent to " + req.Email,
		Warnings: warnings,
	})
}

// buildPDF renders (or fetches from cache) the catalog. On failure it returns
// a nil PDF plus the HTTP status and message to surface.
func (svc *CatalogService) buildPDF(c *fiber.Ctx, o *outfit.Outfit) (pdf []byte, warnings []string, status int, msg string) {
	cacheKey := computeCacheKey(o)
	if svc.Redis != nil && svc.Config.Cache.PDFCacheEnabled {
		if cached := svc.getCachedPDF(c, cacheKey); cached != nil {
			return cached, nil, 0, ""
		}
	}

	assets, warnings := svc.Resolver.ResolveAll(c.UserContext(), o.Items)

	cards := make([]layout.Card, len(o.Items))
	for i, item := range o.Items {
		cards[i] = layout.Card{Item: item, Image: assets[i]}
	}
	pages := layout.Paginate(cards)

	pdf, err := svc.Renderer.Render(pages, o.Description)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			u.Error("PDF generation timeout", "timeout_secs", svc.Config.PDF.TimeoutSecs, "error", err.Error())
			return nil, nil, fiber.StatusRequestTimeout, "PDF rendering took too long"
		}
		if chrome.IsSessionInterrupted(err) {
			u.Error("Chrome session interrupted", "error", err.Error())
			return nil, nil, fiber.StatusServiceUnavailable, "Chrome session interrupted"
		}
		u.Error("PDF generation failed", "error", err.Error())
		return nil, nil, fiber.StatusInternalServerError, "PDF generation failed: " + err.Error()
	}

	if len(pdf) > svc.Config.Limits.MaxPDFBytes {
		return nil, nil, fiber.StatusRequestEntityTooLarge, "PDF exceeds allowed size"
	}

	// Only uncached renders carry warnings; a cached PDF resolved cleanly.
	if len(warnings) == 0 && svc.Redis != nil && svc.Config.Cache.PDFCacheEnabled {
		svc.setCachedPDF(c, cacheKey, pdf)
	}
	return pdf, warnings, 0, ""
}

// HandleInfo reports basic service identity; no pipeline execution.
func (svc *CatalogService) HandleInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Outfit catalog PDF service"})
}

// HandleChromeStats exposes Chrome pool occupancy for observability.
func (svc *CatalogService) HandleChromeStats(c *fiber.Ctx) error {
	renderer, ok := svc.Renderer.(*render.Renderer)
	if !ok {
		return c.JSON(fiber.Map{"enabled": false})
	}
	pool, err := renderer.Pool()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}
	if pool == nil {
		return c.JSON(fiber.Map{
			"enabled":        false,
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": svc.Config.PDF.ChromePoolSize,
			"timeout_secs":   svc.Config.PDF.TimeoutSecs,
		})
	}

	s := pool.Stats(svc.Config.PDF.TimeoutSecs)
	return c.JSON(fiber.Map{
		"enabled":        s.Enabled,
		"capacity":       s.Capacity,
		"idle":           s.Idle,
		"in_use":         s.InUse,
		"pool_size_conf": s.PoolSizeConf,
		"profile_dir":    s.ProfileDir,
		"timeout_secs":   svc.Config.PDF.TimeoutSecs,
		"restarts":       s.Restarts,
		"last_restart":   s.LastRestart,
	})
}

func respondError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(Response{Status: "error", Message: msg})
}

func respondDeliveryError(c *fiber.Ctx, err error) error {
	var authErr *mail.AuthenticationError
	var rcptErr *mail.RecipientError

	switch {
	case errors.As(err, &authErr):
		u.Error("SMTP authentication failed", "error", err.Error())
		return respondError(c, fiber.StatusBadGateway, "Mail relay rejected our credentials")
	case errors.As(err, &rcptErr):
		u.Warn("Recipient rejected by mail relay", "recipient", rcptErr.Recipient, "error", err.Error())
		return respondError(c, fiber.StatusUnprocessableEntity, "Mail relay rejected recipient "+rcptErr.Recipient)
	default:
		u.Error("Mail delivery failed", "error", err.Error())
		return respondError(c, fiber.StatusBadGateway, "Mail delivery failed: "+err.Error())
	}
}

func deliveryText(description string) (subject, body string) {
	if description == "" {
		return "Your outfit", "Hello!\n\nYour outfit is ready. The PDF catalog is attached."
	}
	return "Your outfit: " + description,
		"Hello!\n\nYour outfit '" + description + "' is ready. The PDF catalog is attached."
}

// computeCacheKey hashes the canonical outfit JSON; the recipient does not
// influence the rendered document.
func computeCacheKey(o *outfit.Outfit) string {
	data, _ := json.Marshal(o)
	sum := sha256.Sum256(data)
	return "pdfcache:" + hex.EncodeToString(sum[:])
}

func (svc *CatalogService) getCachedPDF(c *fiber.Ctx, key string) []byte {
	ctx, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := svc.Redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err)
		return nil
	}
	u.Info("PDF cache hit", "key", key)
	return cached
}

func (svc *CatalogService) setCachedPDF(c *fiber.Ctx, key string, data []byte) {
	ctx, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	ttl := svc.Config.Cache.PDFCacheTTL
	if ttl <= 0 {
		ttl = 1 * time.Minute
	}
	if err := svc.Redis.Set(ctx, key, data, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", err)
	}
}
