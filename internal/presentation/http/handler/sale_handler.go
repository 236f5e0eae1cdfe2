package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tillworks/fiscal-pos-api/internal/application/service"
	"github.com/tillworks/fiscal-pos-api/internal/domain/enum"
	"github.com/tillworks/fiscal-pos-api/internal/presentation/http/dto/request"
	"github.com/tillworks/fiscal-pos-api/internal/presentation/http/dto/response"
)

// SaleHandler handles sale transaction HTTP requests.
type SaleHandler struct {
	saleService *service.SaleService
}

// NewSaleHandler creates a new sale handler.
func NewSaleHandler(saleService *service.SaleService) *SaleHandler {
	return &SaleHandler{saleService: saleService}
}

// Create starts a new sale on a till.
func (h *SaleHandler) Create(c *gin.Context) {
	var req request.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	docType := enum.DocumentTypeReceipt
	if req.DocType == "Refund" {
		docType = enum.DocumentTypeRefund
	}

	sale, err := h.saleService.CreateSale(c.Request.Context(), &service.CreateSaleInput{
		TillID:     req.TillID,
		OperatorID: req.OperatorID,
		DocType:    docType,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "Sale created", sale)
}

// Get returns a sale with its lines and payments.
func (h *SaleHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid sale ID format")
		return
	}

	sale, err := h.saleService.GetSale(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Sale retrieved", sale)
}

// AddLine adds a line item to an open sale.
func (h *SaleHandler) AddLine(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid sale ID format")
		return
	}

	var req request.AddLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	sale, err := h.saleService.AddLine(c.Request.Context(), id, &service.AddLineInput{
		ProductRef: req.ProductRef,
		Name:       req.Name,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		Discount:   req.Discount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Line added", sale)
}

// AddPayment adds a payment entry to an open sale.
func (h *SaleHandler) AddPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid sale ID format")
		return
	}

	var req request.AddPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	method := enum.PaymentMethodCash
	switch req.Method {
	case "Card":
		method = enum.PaymentMethodCard
	case "Mobile":
		method = enum.PaymentMethodMobile
	}

	sale, err := h.saleService.AddPayment(c.Request.Context(), id, &service.AddPaymentInput{
		Method: method,
		Amount: req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Payment added", sale)
}

// Commit commits a sale and queues its fiscal document. Retrying a commit
// is safe: the existing print job is reused and reported as a duplicate.
func (h *SaleHandler) Commit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid sale ID format")
		return
	}

	result, err := h.saleService.Commit(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Duplicate {
		response.OK(c, "Sale already committed, print job reused", result)
		return
	}
	response.OK(c, "Sale committed", result)
}

// Void voids a sale that has not been fiscally emitted.
func (h *SaleHandler) Void(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid sale ID format")
		return
	}

	sale, err := h.saleService.Void(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Sale voided", sale)
}
