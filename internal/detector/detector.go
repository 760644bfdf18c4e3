// Package detector defines the entity detection capability and its two
// implementations: an in-process regex detector and a Presidio analyzer client.
package detector

import (
	"context"
)

// Entity types used by the built-in policy contexts.
const (
	TypePerson        = "PERSON"
	TypeEmail         = "EMAIL_ADDRESS"
	TypePhone         = "PHONE_NUMBER"
	TypeCreditCard    = "CREDIT_CARD"
	TypeSSN           = "US_SSN"
	TypeDriverLicense = "US_DRIVER_LICENSE"
	TypePassport      = "US_PASSPORT"
	TypeIBAN          = "IBAN_CODE"
	TypeIPAddress     = "IP_ADDRESS"
	TypeDateTime      = "DATE_TIME"
	TypeLocation      = "LOCATION"
	TypeURL           = "URL"
	TypeUSBankNumber  = "US_BANK_NUMBER"
)

// Entity is a detected span. Start and End are byte offsets into the source
// text with End exclusive.
type Entity struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Type       string  `json:"entity_type"`
	Confidence float64 `json:"score"`
	Text       string  `json:"-"`
}

// Valid reports whether the span lies within a text of length n.
func (e Entity) Valid(n int) bool {
	return e.Start >= 0 && e.End <= n && e.Start < e.End
}

// Len is the span width in bytes.
func (e Entity) Len() int {
	return e.End - e.Start
}

// Detector finds sensitive spans in text.
type Detector interface {
	Detect(ctx context.Context, text string) ([]Entity, error)
}
