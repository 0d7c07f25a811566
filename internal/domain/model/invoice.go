package model

import "time"

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type InvoiceLineItem struct {
	PaymentID       string `json:"payment_id"`
	Description     string `json:"description"`
	Quantity        int    `json:"quantity"`
	UnitPrice       string `json:"unit_price"`
	Amount          string `json:"amount"`
	DiscountPercent string `json:"discount_percent,omitempty"`
}

// Invoice is a receipt derived from payment records. It is never stored.
type Invoice struct {
	InvoiceID     string            `json:"invoice_id"`
	Date          time.Time         `json:"date"`
	Customer      Customer          `json:"customer"`
	LineItems     []InvoiceLineItem `json:"line_items"`
	Subtotal      string            `json:"subtotal"`
	Tax           string            `json:"tax"`
	Total         string            `json:"total"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	Status        PaymentStatus     `json:"status"`
}
