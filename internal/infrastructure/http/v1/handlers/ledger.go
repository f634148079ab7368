package handlers

import (
	"github.com/gin-gonic/gin"

	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler serves payments accounts and daily transactions.
type LedgerHandler struct {
	ledgerHandler
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(base *BaseHandler, service *reconcile.Service, stores reconcile.Stores) *LedgerHandler {
	return &LedgerHandler{ledgerHandler{BaseHandler: base, service: service, stores: stores}}
}

// OpenAccount handles POST /payments-accounts
func (h *LedgerHandler) OpenAccount(c *gin.Context) {
	var req dto.OpenAccountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	acc, err := h.service.OpenPaymentsAccount(c.Request.Context(), req.Name)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, acc)
}

// ListAccounts handles GET /payments-accounts
func (h *LedgerHandler) ListAccounts(c *gin.Context) {
	list, err := h.stores.PaymentsAccounts.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// GetAccount handles GET /payments-accounts/:name
func (h *LedgerHandler) GetAccount(c *gin.Context) {
	acc, err := h.stores.PaymentsAccounts.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, acc)
}

// PostTransfer handles POST /transactions/transfer
func (h *LedgerHandler) PostTransfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	txn, err := h.service.PostTransfer(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, txn)
}

// PostSimple handles POST /transactions/simple
func (h *LedgerHandler) PostSimple(c *gin.Context) {
	var req dto.SimpleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	txn, err := h.service.PostSimple(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, txn)
}

// ListTransactions handles GET /transactions
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	list, err := h.stores.Transactions.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(list))
}

// ReverseTransaction handles DELETE /transactions/:id
func (h *LedgerHandler) ReverseTransaction(c *gin.Context) {
	if err := h.service.ReverseDailyTransaction(c.Request.Context(), c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
