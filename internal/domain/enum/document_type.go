package enum

import (
	"database/sql/driver"
	"encoding/json"
)

// DocumentType represents the kind of fiscal document a sale produces
type DocumentType int

const (
	DocumentTypeReceipt DocumentType = 0
	DocumentTypeRefund  DocumentType = 1
	DocumentTypeCancel  DocumentType = 2
)

func (t DocumentType) String() string {
	return [...]string{"Receipt", "Refund", "Cancel"}[t]
}

func (t DocumentType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *DocumentType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		*t = DocumentType(i)
		return nil
	}
	switch str {
	case "Receipt":
		*t = DocumentTypeReceipt
	case "Refund":
		*t = DocumentTypeRefund
	case "Cancel":
		*t = DocumentTypeCancel
	}
	return nil
}

func (t DocumentType) Value() (driver.Value, error) {
	return int64(t), nil
}

func (t *DocumentType) Scan(value interface{}) error {
	if value == nil {
		*t = DocumentTypeReceipt
		return nil
	}
	switch v := value.(type) {
	case int64:
		*t = DocumentType(v)
	case int:
		*t = DocumentType(v)
	}
	return nil
}
