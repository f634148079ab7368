package handlers

import (
	"github.com/gin-gonic/gin"

	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// PurchaseHandler serves purchases and returns.
type PurchaseHandler struct {
	ledgerHandler
}

// NewPurchaseHandler creates a purchase handler.
func NewPurchaseHandler(base *BaseHandler, service *reconcile.Service, stores reconcile.Stores) *PurchaseHandler {
	return &PurchaseHandler{ledgerHandler{BaseHandler: base, service: service, stores: stores}}
}

// Create handles POST /purchases
func (h *PurchaseHandler) Create(c *gin.Context) {
	var req dto.PurchaseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.service.CreatePurchase(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, p)
}

// List handles GET /purchases
func (h *PurchaseHandler) List(c *gin.Context) {
	list, err := h.stores.Purchases.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// Get handles GET /purchases/:id
func (h *PurchaseHandler) Get(c *gin.Context) {
	p, err := h.stores.Purchases.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Update handles PUT /purchases/:id
func (h *PurchaseHandler) Update(c *gin.Context) {
	var req dto.PurchaseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.service.UpdatePurchase(c.Request.Context(), c.Param("id"), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Delete handles DELETE /purchases/:id
func (h *PurchaseHandler) Delete(c *gin.Context) {
	if err := h.service.DeletePurchase(c.Request.Context(), c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// CreateReturn handles POST /returns
func (h *PurchaseHandler) CreateReturn(c *gin.Context) {
	var req dto.ReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	r, err := h.service.CreateReturn(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, r)
}

// ListReturns handles GET /returns
func (h *PurchaseHandler) ListReturns(c *gin.Context) {
	list, err := h.stores.Returns.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// GetReturn handles GET /returns/:no
func (h *PurchaseHandler) GetReturn(c *gin.Context) {
	r, err := h.stores.Returns.Get(c.Request.Context(), c.Param("no"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}

// DeleteReturn handles DELETE /returns/:no
func (h *PurchaseHandler) DeleteReturn(c *gin.Context) {
	if err := h.service.DeleteReturn(c.Request.Context(), c.Param("no")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
