package handlers

import (
	"github.com/gin-gonic/gin"

	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// BillingHandler serves billings, their payments and deliveries.
type BillingHandler struct {
	ledgerHandler
}

// NewBillingHandler creates a billing handler.
func NewBillingHandler(base *BaseHandler, service *reconcile.Service, stores reconcile.Stores) *BillingHandler {
	return &BillingHandler{ledgerHandler{BaseHandler: base, service: service, stores: stores}}
}

// Create handles POST /billings
func (h *BillingHandler) Create(c *gin.Context) {
	var req dto.CreateBillingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	b, err := h.service.CreateBilling(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, b)
}

// List handles GET /billings, optionally filtered by ?customerId=.
func (h *BillingHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	if customerID := c.Query("customerId"); customerID != "" {
		list, err := h.stores.Billings.ListByCustomer(ctx, customerID)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.NewListResponse(list))
		return
	}
	list, err := h.stores.Billings.List(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// Get handles GET /billings/:id
func (h *BillingHandler) Get(c *gin.Context) {
	b, err := h.stores.Billings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// Delete handles DELETE /billings/:id
func (h *BillingHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteBilling(c.Request.Context(), c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// AddPayment handles POST /billings/:id/payments
func (h *BillingHandler) AddPayment(c *gin.Context) {
	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entry, err := h.service.AddBillingPayment(c.Request.Context(), c.Param("id"), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, entry)
}

// UpdatePayment handles PUT /billings/:id/payments/:ref
func (h *BillingHandler) UpdatePayment(c *gin.Context) {
	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entry, err := h.service.UpdateBillingPayment(c.Request.Context(), c.Param("id"), c.Param("ref"), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entry)
}

// DeletePayment handles DELETE /billings/:id/payments/:ref
func (h *BillingHandler) DeletePayment(c *gin.Context) {
	if err := h.service.DeleteBillingPayment(c.Request.Context(), c.Param("id"), c.Param("ref")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// StartDelivery handles POST /billings/:id/deliveries
func (h *BillingHandler) StartDelivery(c *gin.Context) {
	var req dto.StartDeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	deliveryID, err := h.service.StartDelivery(c.Request.Context(), c.Param("id"), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.DeliveryIDResponse{DeliveryID: deliveryID})
}

// EndDelivery handles PUT /billings/:id/deliveries/:deliveryId/end
func (h *BillingHandler) EndDelivery(c *gin.Context) {
	var req dto.EndDeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	b, err := h.service.EndDelivery(c.Request.Context(), c.Param("id"), c.Param("deliveryId"), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// CancelDelivery handles DELETE /billings/:id/deliveries/:deliveryId
func (h *BillingHandler) CancelDelivery(c *gin.Context) {
	if err := h.service.CancelDelivery(c.Request.Context(), c.Param("id"), c.Param("deliveryId")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// UpsertExpenses handles PUT /billings/:id/expenses
func (h *BillingHandler) UpsertExpenses(c *gin.Context) {
	var req dto.ExpensesRequest
	if !h.BindJSON(c, &req) {
		return
	}
	b, err := h.service.UpsertBillingExpenses(c.Request.Context(), c.Param("id"), req.Expenses)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}
