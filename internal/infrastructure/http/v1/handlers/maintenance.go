package handlers

import (
	"github.com/gin-gonic/gin"

	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// MaintenanceHandler exposes recomputation, stock verification and numbering.
type MaintenanceHandler struct {
	ledgerHandler
}

// NewMaintenanceHandler creates a maintenance handler.
func NewMaintenanceHandler(base *BaseHandler, service *reconcile.Service) *MaintenanceHandler {
	return &MaintenanceHandler{ledgerHandler{BaseHandler: base, service: service}}
}

// Recompute handles POST /maintenance/recompute?dryRun=true
func (h *MaintenanceHandler) Recompute(c *gin.Context) {
	report, err := h.service.Recompute(c.Request.Context(), h.ParseBoolQuery(c, "dryRun", false))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// VerifyStock handles GET /maintenance/verify-stock
func (h *MaintenanceHandler) VerifyStock(c *gin.Context) {
	mismatches, err := h.service.VerifyStock(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(mismatches))
}

// NextNumber handles GET /numbers/:prefix/next
func (h *MaintenanceHandler) NextNumber(c *gin.Context) {
	n, err := h.service.NextNumber(c.Request.Context(), c.Param("prefix"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NextNumberResponse{Number: n})
}
