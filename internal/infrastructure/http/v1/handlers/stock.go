package handlers

import (
	"github.com/gin-gonic/gin"

	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// StockHandler serves products, the stock registry and manual corrections.
type StockHandler struct {
	ledgerHandler
}

// NewStockHandler creates a stock handler.
func NewStockHandler(base *BaseHandler, service *reconcile.Service, stores reconcile.Stores) *StockHandler {
	return &StockHandler{ledgerHandler{BaseHandler: base, service: service, stores: stores}}
}

// ListProducts handles GET /products
func (h *StockHandler) ListProducts(c *gin.Context) {
	list, err := h.stores.Products.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// GetProduct handles GET /products/:itemId and includes its registry rows.
func (h *StockHandler) GetProduct(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.stores.Products.Get(ctx, c.Param("itemId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	rows, err := h.stores.Registry.ListByItem(ctx, p.ItemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ProductResponse{Product: p, Registry: rows})
}

// ListNeeds handles GET /need-to-purchase, optionally filtered by ?invoiceNo=.
func (h *StockHandler) ListNeeds(c *gin.Context) {
	ctx := c.Request.Context()
	if invoiceNo := c.Query("invoiceNo"); invoiceNo != "" {
		list, err := h.stores.Needs.ListByInvoice(ctx, invoiceNo)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.NewListResponse(list))
		return
	}
	list, err := h.stores.Needs.List(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// Update handles POST /stock/updates
func (h *StockHandler) Update(c *gin.Context) {
	var req dto.StockUpdateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	row, err := h.service.UpdateStock(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, row)
}

// Revert handles POST /stock/updates/:changeId/revert
func (h *StockHandler) Revert(c *gin.Context) {
	row, err := h.service.RevertStockUpdate(c.Request.Context(), c.Param("changeId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, row)
}
