package ledger

import "time"

// Record is one row of the stock-intake ledger: one line item of one invoice,
// with the invoice-level fields denormalized onto it. Money stays float64 end
// to end; deduplication compares amounts with a tolerance instead of relying
// on exact representation.
type Record struct {
	ID      uint64 `json:"id"`
	OwnerID string `json:"owner_id"`

	// Invoice-level fields, repeated on every item row
	InvoiceType      string  `json:"invoice_type"`
	InvoiceNumber    string  `json:"invoice_number"`
	InvoiceDate      string  `json:"invoice_date"` // as printed, e.g. 2024年07月01日
	BuyerName        string  `json:"buyer_name"`
	BuyerTaxID       string  `json:"buyer_tax_id"`
	SellerName       string  `json:"seller_name"`
	SellerTaxID      string  `json:"seller_tax_id"`
	TotalAmountWords string  `json:"total_amount_words"`
	TotalAmountNum   float64 `json:"total_amount_num"`
	Remark           string  `json:"remark"`
	Issuer           string  `json:"issuer"`

	// Line-item fields
	ItemName      string  `json:"item_name"`
	Specification string  `json:"specification"`
	Unit          string  `json:"unit"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	Amount        float64 `json:"amount"` // net of tax
	TaxRate       string  `json:"tax_rate"`
	TaxAmount     float64 `json:"tax_amount"`

	// Intake fields
	SourceFile         string    `json:"source_file"` // storage path of the uploaded document
	ContentType        string    `json:"content_type"`
	CreatedAt          time.Time `json:"created_at"`
	IntakeDate         string    `json:"intake_date"` // YYYY-MM-DD, chosen per batch
	IntakeAmount       float64   `json:"intake_amount"`
	PurchaseAmount     float64   `json:"purchase_amount"`
	InvoiceShortNumber string    `json:"invoice_short_number"` // last 8 digits, first item of a file only
	IntakeNumber       string    `json:"intake_number"`        // wz + yyyymm + 3-digit sequence
	UseUnit            string    `json:"use_unit"`
}

// Failure records a file that produced no ledger records because of an error,
// kept so operators can triage and re-scan. SourceFile is best effort and
// empty when the upload never finished reading.
type Failure struct {
	ID          uint64    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	FileName    string    `json:"file_name"`
	Error       string    `json:"error"`
	SourceFile  string    `json:"source_file"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}
