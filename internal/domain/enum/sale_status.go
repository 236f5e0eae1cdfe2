package enum

import (
	"database/sql/driver"
	"encoding/json"
)

// SaleStatus represents the lifecycle state of a sale transaction
type SaleStatus int

const (
	SaleStatusOpen            SaleStatus = 0
	SaleStatusCommitted       SaleStatus = 1
	SaleStatusFiscallyPending SaleStatus = 2
	SaleStatusFiscallyEmitted SaleStatus = 3
	SaleStatusVoided          SaleStatus = 4
	SaleStatusFailed          SaleStatus = 5
)

func (s SaleStatus) String() string {
	return [...]string{"Open", "Committed", "FiscallyPending", "FiscallyEmitted", "Voided", "Failed"}[s]
}

// Terminal reports whether the sale can no longer change state.
func (s SaleStatus) Terminal() bool {
	return s == SaleStatusFiscallyEmitted || s == SaleStatusVoided || s == SaleStatusFailed
}

func (s SaleStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SaleStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		// Try unmarshaling as int
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		*s = SaleStatus(i)
		return nil
	}
	switch str {
	case "Open":
		*s = SaleStatusOpen
	case "Committed":
		*s = SaleStatusCommitted
	case "FiscallyPending":
		*s = SaleStatusFiscallyPending
	case "FiscallyEmitted":
		*s = SaleStatusFiscallyEmitted
	case "Voided":
		*s = SaleStatusVoided
	case "Failed":
		*s = SaleStatusFailed
	}
	return nil
}

func (s SaleStatus) Value() (driver.Value, error) {
	return int64(s), nil
}

func (s *SaleStatus) Scan(value interface{}) error {
	if value == nil {
		*s = SaleStatusOpen
		return nil
	}
	switch v := value.(type) {
	case int64:
		*s = SaleStatus(v)
	case int:
		*s = SaleStatus(v)
	}
	return nil
}
