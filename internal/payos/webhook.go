package payos

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Status is the normalized gateway vocabulary.
type Status string

const (
	StatusPaid       Status = "PAID"
	StatusProcessing Status = "PROCESSING"
	StatusCancelled  Status = "CANCELLED"
	StatusError      Status = "ERROR"
	StatusExpired    Status = "EXPIRED"
	StatusRefunded   Status = "REFUNDED"
)

var ErrNotObject = errors.New("payos: webhook body is not a JSON object")

// NormalizeStatus maps the spellings seen in the wild onto Status.
// Anything unrecognized is treated as still processing.
func NormalizeStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID", "SUCCESS", "SUCCEEDED", "COMPLETED":
		return StatusPaid
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	case "ERROR", "FAILED":
		return StatusError
	case "EXPIRED":
		return StatusExpired
	case "REFUNDED":
		return StatusRefunded
	default:
		return StatusProcessing
	}
}

// Event is the one internal shape every webhook payload is reduced to.
type Event struct {
	OrderCode     int64
	HasOrderCode  bool
	Reference     string
	Status        Status
	Amount        decimal.NullDecimal
	BankReference string
	PaymentID     string
	TransactionID string
	Method        string
	PaidAt        string
	Signed        bool
	Raw           json.RawMessage
}

// IsPing reports a liveness probe: nothing to correlate and nothing signed.
func (e Event) IsPing() bool {
	return !e.HasOrderCode && e.TransactionID == "" && !e.Signed
}

// Payload is either a *FlatPayload or a *NestedPayload.
type Payload interface {
	Event() Event
	signedFields() map[string]any
	bodySignature() string
}

// OrderCode accepts both 123 and "123".
type OrderCode struct {
	Value int64
	Set   bool
}

func (o *OrderCode) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.New("payos: orderCode is not an integer")
	}
	o.Value, o.Set = n, true
	return nil
}

// FlatPayload is {orderCode, status, reference, ...}.
type FlatPayload struct {
	OrderCode     OrderCode           `json:"orderCode"`
	Status        string              `json:"status"`
	Reference     string              `json:"reference"`
	TransactionID string              `json:"transactionId"`
	Amount        decimal.NullDecimal `json:"amount"`
	PaymentLinkID string              `json:"paymentLinkId"`
	BankReference string              `json:"bankReference"`
	Method        string              `json:"method"`
	Signature     string              `json:"signature"`

	fields map[string]any
	raw    json.RawMessage
}

func (p *FlatPayload) Event() Event {
	bankRef := p.BankReference
	if bankRef == "" {
		bankRef = p.TransactionID
	}
	ref := p.Reference
	if ref == "" && p.OrderCode.Set {
		ref = strconv.FormatInt(p.OrderCode.Value, 10)
	}
	return Event{
		OrderCode:     p.OrderCode.Value,
		HasOrderCode:  p.OrderCode.Set,
		Reference:     ref,
		Status:        NormalizeStatus(p.Status),
		Amount:        p.Amount,
		BankReference: bankRef,
		PaymentID:     p.PaymentLinkID,
		TransactionID: p.TransactionID,
		Method:        p.Method,
		Signed:        p.Signature != "",
		Raw:           p.raw,
	}
}

func (p *FlatPayload) signedFields() map[string]any {
	out := make(map[string]any, len(p.fields))
	for k, v := range p.fields {
		if k != "signature" {
			out[k] = v
		}
	}
	return out
}

func (p *FlatPayload) bodySignature() string { return p.Signature }

// NestedData is the "data" object of a PayOS-native webhook.
type NestedData struct {
	OrderCode           OrderCode           `json:"orderCode"`
	Amount              decimal.NullDecimal `json:"amount"`
	Description         string              `json:"description"`
	AccountNumber       string              `json:"accountNumber"`
	Reference           string              `json:"reference"`
	TransactionDateTime string              `json:"transactionDateTime"`
	PaymentLinkID       string              `json:"paymentLinkId"`
	TransactionID       string              `json:"transactionId"`
	Status              string              `json:"status"`
	Code                string              `json:"code"`
	Desc                string              `json:"desc"`
}

// NestedPayload is {code, desc, success, data: {...}, signature}.
type NestedPayload struct {
	Code      string     `json:"code"`
	Desc      string     `json:"desc"`
	Success   *bool      `json:"success"`
	Status    string     `json:"status"`
	Data      NestedData `json:"data"`
	Signature string     `json:"signature"`

	dataFields map[string]any
	raw        json.RawMessage
}

func (p *NestedPayload) status() Status {
	switch {
	case p.Data.Status != "":
		return NormalizeStatus(p.Data.Status)
	case p.Status != "":
		return NormalizeStatus(p.Status)
	case p.Code == "00" && (p.Success == nil || *p.Success):
		return StatusPaid
	default:
		return StatusError
	}
}

func (p *NestedPayload) Event() Event {
	var ref string
	if p.Data.OrderCode.Set {
		ref = strconv.FormatInt(p.Data.OrderCode.Value, 10)
	}
	return Event{
		OrderCode:     p.Data.OrderCode.Value,
		HasOrderCode:  p.Data.OrderCode.Set,
		Reference:     ref,
		Status:        p.status(),
		Amount:        p.Data.Amount,
		BankReference: p.Data.Reference,
		PaymentID:     p.Data.PaymentLinkID,
		TransactionID: p.Data.TransactionID,
		Method:        "bank_transfer",
		PaidAt:        p.Data.TransactionDateTime,
		Signed:        p.Signature != "",
		Raw:           p.raw,
	}
}

func (p *NestedPayload) signedFields() map[string]any { return p.dataFields }
func (p *NestedPayload) bodySignature() string { return p.Signature }

// Parse decodes a webhook body into its concrete payload shape. A body
// carrying a "data" object is nested; any other object is flat.
func Parse(body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, ErrNotObject
	}
	fields, ok := top.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	raw := json.RawMessage(bytes.TrimSpace(body))

	if data, ok := fields["data"].(map[string]any); ok {
		p := &NestedPayload{dataFields: data, raw: raw}
		if err := json.Unmarshal(body, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	p := &FlatPayload{fields: fields, raw: raw}
	if err := json.Unmarshal(body, p); err != nil {
		return nil, err
	}
	return p, nil
}
