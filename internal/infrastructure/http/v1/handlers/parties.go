package handlers

import (
	"github.com/gin-gonic/gin"

	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// PartiesHandler serves supplier, seller and customer accounts.
type PartiesHandler struct {
	ledgerHandler
}

// NewPartiesHandler creates a parties handler.
func NewPartiesHandler(base *BaseHandler, service *reconcile.Service, stores reconcile.Stores) *PartiesHandler {
	return &PartiesHandler{ledgerHandler{BaseHandler: base, service: service, stores: stores}}
}

// ListSuppliers handles GET /suppliers
func (h *PartiesHandler) ListSuppliers(c *gin.Context) {
	list, err := h.stores.Suppliers.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// GetSupplier handles GET /suppliers/:id
func (h *PartiesHandler) GetSupplier(c *gin.Context) {
	acc, err := h.stores.Suppliers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, acc)
}

// PaySupplier handles POST /suppliers/:id/payments
func (h *PartiesHandler) PaySupplier(c *gin.Context) {
	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entry, err := h.service.PaySupplier(c.Request.Context(), c.Param("id"), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, entry)
}

// ReverseSupplierPayment handles DELETE /suppliers/:id/payments/:ref
func (h *PartiesHandler) ReverseSupplierPayment(c *gin.Context) {
	if err := h.service.ReverseSupplierPayment(c.Request.Context(), c.Param("id"), c.Param("ref")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ListSellers handles GET /sellers
func (h *PartiesHandler) ListSellers(c *gin.Context) {
	list, err := h.stores.Sellers.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// GetSeller handles GET /sellers/:id
func (h *PartiesHandler) GetSeller(c *gin.Context) {
	acc, err := h.stores.Sellers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, acc)
}

// PaySeller handles POST /sellers/:id/payments
func (h *PartiesHandler) PaySeller(c *gin.Context) {
	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entry, err := h.service.PaySeller(c.Request.Context(), c.Param("id"), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, entry)
}

// ReverseSellerPayment handles DELETE /sellers/:id/payments/:ref
func (h *PartiesHandler) ReverseSellerPayment(c *gin.Context) {
	if err := h.service.ReverseSellerPayment(c.Request.Context(), c.Param("id"), c.Param("ref")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ListCustomers handles GET /customers
func (h *PartiesHandler) ListCustomers(c *gin.Context) {
	list, err := h.stores.Customers.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// GetCustomer handles GET /customers/:id
func (h *PartiesHandler) GetCustomer(c *gin.Context) {
	acc, err := h.stores.Customers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, acc)
}

// UpdateCustomer handles PUT /customers/:id
func (h *PartiesHandler) UpdateCustomer(c *gin.Context) {
	var req dto.UpdateCustomerRequest
	if !h.BindJSON(c, &req) {
		return
	}
	acc, err := h.service.UpdateCustomerAccount(c.Request.Context(), c.Param("id"), req.CustomerName)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, acc)
}

// DeleteCustomer handles DELETE /customers/:id
func (h *PartiesHandler) DeleteCustomer(c *gin.Context) {
	if err := h.service.DeleteCustomerAccount(c.Request.Context(), c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
