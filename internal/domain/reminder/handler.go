package reminder

import (
	"log/slog"
	"net/http"

	"remindly/internal/common"

	"github.com/gin-gonic/gin"
)

// RunEnqueuer defines the contract for queuing reminder runs.
// This keeps the handler decoupled from the queue implementation.
type RunEnqueuer interface {
	EnqueueRun(dryRun bool) error
}

// TemplateInfo describes one registered reminder template, exposed so an
// external template manager can read and edit the defaults.
type TemplateInfo struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Body        string `json:"body"`
}

// TemplateCatalog lists the templates registered for the configured tiers.
type TemplateCatalog interface {
	Catalog() []TemplateInfo
}

// Handler handles HTTP requests for the reminder domain.
type Handler struct {
	enqueuer RunEnqueuer
	ledger   Ledger
	catalog  TemplateCatalog
}

// NewHandler creates a new reminder handler.
func NewHandler(enqueuer RunEnqueuer, ledger Ledger, catalog TemplateCatalog) *Handler {
	return &Handler{enqueuer: enqueuer, ledger: ledger, catalog: catalog}
}

// TriggerRun handles POST /api/v1/runs
// Queues a reminder run and returns 202 Accepted. With {"dry_run": true} the
// run logs its decisions but delivers nothing and writes no ledger records.
func (h *Handler) TriggerRun(c *gin.Context) {
	var opts RunOptions
	if err := c.ShouldBindJSON(&opts); err != nil && err.Error() != "EOF" {
		common.HandleError(c, common.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	if err := h.enqueuer.EnqueueRun(opts.DryRun); err != nil {
		slog.Error("failed to enqueue reminder run", "dry_run", opts.DryRun, "error", err)
		common.HandleError(c, err)
		return
	}

	slog.Info("reminder run enqueued", "dry_run", opts.DryRun)
	common.Success(c, http.StatusAccepted, gin.H{
		"status":  "queued",
		"dry_run": opts.DryRun,
	})
}

// GetNotificationRecord handles GET /api/v1/subscriptions/:id/notification
// Returns the de-duplication record for a subscription.
func (h *Handler) GetNotificationRecord(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.ledger.Record(c.Request.Context(), id)
	if err != nil {
		slog.Error("failed to read notification record", "subscription_id", id, "error", err)
		common.HandleError(c, err)
		return
	}
	if rec == nil {
		common.HandleError(c, common.NewNotFoundError("notification record", id))
		return
	}

	common.Success(c, http.StatusOK, rec)
}

// ListTemplates handles GET /api/v1/templates
// Lists the reminder templates registered for the configured tiers.
func (h *Handler) ListTemplates(c *gin.Context) {
	common.Success(c, http.StatusOK, h.catalog.Catalog())
}

// RegisterRoutes registers reminder routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/runs", h.TriggerRun)
	rg.GET("/subscriptions/:id/notification", h.GetNotificationRecord)
	rg.GET("/templates", h.ListTemplates)
}
