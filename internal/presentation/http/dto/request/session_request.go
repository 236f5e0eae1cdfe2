package request

import "github.com/shopspring/decimal"

// OpenSessionRequest is the request body for opening a cash session.
type OpenSessionRequest struct {
	TillID       string          `json:"till_id" binding:"required"`
	OperatorID   string          `json:"operator_id" binding:"required"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
}

// CloseSessionRequest is the request body for closing a cash session.
type CloseSessionRequest struct {
	DeclaredBalance decimal.Decimal `json:"declared_balance"`
}
