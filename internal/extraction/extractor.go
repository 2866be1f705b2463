package extraction

import "context"

// Sentinel values the extraction prompt instructs the model to emit when a
// field cannot be read off the scan.
const (
	UnknownInvoiceNumber = "未知"
	UnknownItemName      = "未知项目"
	DefaultInvoiceType   = "普通发票"
)

// Party identifies one side of an invoice (buyer or seller).
type Party struct {
	Name  string `json:"name"`
	TaxID string `json:"taxId"`
}

// Total holds the invoice grand total in words and figures.
type Total struct {
	AmountWords string  `json:"amountWords"`
	AmountNum   float64 `json:"amountNum"`
}

// LineItem is one detail row of an invoice.
type LineItem struct {
	ItemName      string  `json:"itemName"`
	Specification string  `json:"specification"`
	Unit          string  `json:"unit"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unitPrice"`
	Amount        float64 `json:"amount"`
	TaxRate       string  `json:"taxRate"`
	TaxAmount     float64 `json:"taxAmount"`
}

// Invoice contains the structured data extracted from one invoice document.
type Invoice struct {
	InvoiceType   string     `json:"invoiceType"`
	InvoiceNumber string     `json:"invoiceNumber"`
	Date          string     `json:"date"`
	Buyer         Party      `json:"buyer"`
	Seller        Party      `json:"seller"`
	Items         []LineItem `json:"items"`
	Total         Total      `json:"total"`
	Remark        string     `json:"remark"`
	Issuer        string     `json:"issuer"`
}

// Extractor defines the interface for invoice extraction providers.
type Extractor interface {
	// Extract analyzes an invoice image/PDF and returns the structured data
	Extract(ctx context.Context, data []byte, contentType string) (*Invoice, error)
	// Close closes the extractor and releases resources
	Close() error
}
