package request

import "github.com/shopspring/decimal"

// CreateSaleRequest is the request body for starting a sale.
type CreateSaleRequest struct {
	TillID     string `json:"till_id" binding:"required"`
	OperatorID string `json:"operator_id" binding:"required"`
	DocType    string `json:"doc_type" binding:"omitempty,oneof=Receipt Refund"`
}

// AddLineRequest is the request body for adding a line item to an open sale.
type AddLineRequest struct {
	ProductRef string          `json:"product_ref" binding:"required"`
	Name       string          `json:"name" binding:"required"`
	Quantity   int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice  decimal.Decimal `json:"unit_price" binding:"required"`
	Discount   decimal.Decimal `json:"discount"`
}

// AddPaymentRequest is the request body for adding a payment to an open sale.
type AddPaymentRequest struct {
	Method string          `json:"method" binding:"required,oneof=Cash Card Mobile"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}
