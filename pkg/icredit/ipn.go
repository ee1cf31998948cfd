package icredit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedNotification = errors.New("icredit notification is not valid json")
	ErrMissingIdentifier     = errors.New("icredit notification carries no order identifier")
)

// Notification is the normalized IPN body posted by the gateway.
type Notification struct {
	SaleID           string
	PaymentReference string
	OrderID          string
	TransactionID    string
	Status           string
}

// Approved reports a successful transaction status.
func (n Notification) Approved() bool {
	return strings.TrimSpace(n.Status) == "0"
}

// EventKey identifies a delivery for duplicate suppression.
func (n Notification) EventKey() string {
	if n.TransactionID != "" {
		return n.TransactionID
	}
	ref := n.PaymentReference
	if ref == "" {
		ref = n.SaleID
	}
	if ref == "" {
		ref = n.OrderID
	}
	return ref + ":" + n.Status
}

// ParseNotification decodes an IPN body. Both PascalCase and snake_case keys are accepted.
func ParseNotification(body []byte) (*Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, ErrMalformedNotification
	}

	n := &Notification{
		SaleID:           firstString(raw, "SaleId", "sale_id"),
		PaymentReference: firstString(raw, "payment_reference", "PaymentReference", "ref"),
		OrderID:          firstString(raw, "order_id", "OrderId"),
		TransactionID:    firstString(raw, "TransactionId", "transaction_id"),
		Status:           firstString(raw, "TransStatus", "trans_status", "Status", "status"),
	}
	if n.OrderID == "" {
		n.OrderID = customOrderID(raw["CustomFields"])
	}
	if n.SaleID == "" && n.PaymentReference == "" && n.OrderID == "" {
		return nil, ErrMissingIdentifier
	}
	return n, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return ""
}

// customOrderID reads order_id from CustomFields, which arrives either as an object or as an encoded string.
func customOrderID(v any) string {
	switch fields := v.(type) {
	case map[string]any:
		return firstString(fields, "order_id")
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(fields), &decoded); err != nil {
			return ""
		}
		return firstString(decoded, "order_id")
	default:
		return ""
	}
}
