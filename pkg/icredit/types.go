package icredit

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Item is one line on the hosted payment page. UnitPrice may be negative for discount lines.
type Item struct {
	Quantity    int
	UnitPrice   decimal.Decimal
	Description string
}

// Customer is the contact snapshot shown on the payment page and invoice.
type Customer struct {
	FullName string
	Email    string
	Phone    string
	Address  string
	City     string
}

// SaleRequest describes a single order sale.
type SaleRequest struct {
	SaleID          string
	OrderID         string
	Amount          decimal.Decimal
	Items           []Item
	Customer        Customer
	RedirectURL     string
	FailRedirectURL string
	IPNURL          string
}

// SaleResponse carries the payment page URL and the gateway's sale token.
type SaleResponse struct {
	URL              string
	PrivateSaleToken string
}

type VerifyResult struct {
	Verified    bool
	Status      int
	Description string
}

type itemPayload struct {
	Quantity    int    `json:"Quantity"`
	UnitPrice   string `json:"UnitPrice"`
	Description string `json:"Description"`
}

type salePayload struct {
	SaleID string `json:"SaleId"`
	Amount string `json:"Amount"`
}

type createSalePayload struct {
	GroupPrivateToken string        `json:"GroupPrivateToken"`
	CreditboxToken    string        `json:"CreditboxToken,omitempty"`
	CustomerFirstName string        `json:"CustomerFirstName"`
	CustomerLastName  string        `json:"CustomerLastName"`
	PhoneNumber       string        `json:"PhoneNumber"`
	EmailAddress      string        `json:"EmailAddress"`
	Address           string        `json:"Address,omitempty"`
	City              string        `json:"City,omitempty"`
	FlexItem          bool          `json:"FlexItem"`
	Items             []itemPayload `json:"Items"`
	Currency          int           `json:"Currency"`
	Sale              salePayload   `json:"Sale"`
	RedirectURL       string        `json:"RedirectURL"`
	FailRedirectURL   string        `json:"FailRedirectURL"`
	IPNURL            string        `json:"IPNURL"`
	HideItemList      bool          `json:"HideItemList"`
	CustomFields      string        `json:"CustomFields"`
	DocumentType      int           `json:"DocumentType"`
}

type saleResponse struct {
	Status            int    `json:"Status"`
	StatusDescription string `json:"StatusDescription"`
	URL               string `json:"URL"`
	PrivateSaleToken  string `json:"PrivateSaleToken"`
}

type verifyPayload struct {
	GroupPrivateToken string `json:"GroupPrivateToken"`
	SaleID            string `json:"SaleId"`
	PrivateSaleToken  string `json:"PrivateSaleToken"`
}

type verifyResponse struct {
	Status            int    `json:"Status"`
	StatusDescription string `json:"StatusDescription"`
}

func (r SaleRequest) payload(groupToken, creditBoxToken string) ([]byte, error) {
	custom, err := json.Marshal(map[string]string{"order_id": r.OrderID})
	if err != nil {
		return nil, err
	}
	first, last := splitName(r.Customer.FullName)
	items := make([]itemPayload, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, itemPayload{
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Description: it.Description,
		})
	}
	return json.Marshal(createSalePayload{
		GroupPrivateToken: groupToken,
		CreditboxToken:    creditBoxToken,
		CustomerFirstName: first,
		CustomerLastName:  last,
		PhoneNumber:       r.Customer.Phone,
		EmailAddress:      r.Customer.Email,
		Address:           r.Customer.Address,
		City:              r.Customer.City,
		FlexItem:          true,
		Items:             items,
		Currency:          currencyILS,
		Sale:              salePayload{SaleID: r.SaleID, Amount: r.Amount.StringFixed(2)},
		RedirectURL:       r.RedirectURL,
		FailRedirectURL:   r.FailRedirectURL,
		IPNURL:            r.IPNURL,
		HideItemList:      false,
		CustomFields:      string(custom),
		DocumentType:      documentInvoice,
	})
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}
