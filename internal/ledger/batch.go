package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/qiwen-ledger/invoice-intake/internal/extraction"
)

// FileStatus is the processing state of one file within a batch.
type FileStatus string

const (
	StatusQueued       FileStatus = "queued"
	StatusReading      FileStatus = "reading"
	StatusExtracting   FileStatus = "extracting"
	StatusSuccess      FileStatus = "success"
	StatusAllDuplicate FileStatus = "all_duplicate"
	StatusFailed       FileStatus = "failed"
)

// errInvoiceNumberUnrecognized is the fixed validation message for an
// extraction that came back without a usable invoice number.
var errInvoiceNumberUnrecognized = errors.New("发票号码无法识别")

// specialInvoiceMarker appears in the type name of special VAT invoices
// (增值税专用发票), whose net amount is what posts to stock.
const specialInvoiceMarker = "专用"

// invoiceShortNumberLen is how many trailing digits of the invoice number are
// recorded as the short reference.
const invoiceShortNumberLen = 8

// BatchFile is one uploaded document in a batch. Open is called once when the
// file enters the reading state, so an I/O failure surfaces as that file's
// outcome rather than an upfront batch error.
type BatchFile struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileResult is the terminal outcome of one file.
type FileResult struct {
	Name       string     `json:"name"`
	Status     FileStatus `json:"status"`
	Saved      int        `json:"saved"`
	Duplicates int        `json:"duplicates"`
	Error      string     `json:"error,omitempty"`
}

// BatchResult is the outcome of a whole batch. Saved greater than zero is the
// signal that the ledger changed and consumers should refresh.
type BatchResult struct {
	Files []FileResult `json:"files"`
	Saved int          `json:"saved"`
}

// StatusFunc observes per-file status transitions as a batch progresses,
// keyed by the file's index in the input slice. May be nil.
type StatusFunc func(index int, status FileStatus)

// batchRun carries the state shared across all files of one batch: the live
// ledger snapshot and the running intake sequence. One batch, one writer.
type batchRun struct {
	ownerID    string
	intakeDate string
	yearMonth  string
	snap       *snapshot
	lastSeq    int
	notify     StatusFunc
}

// ProcessBatch reconciles a batch of uploaded invoice files into the ledger.
// Files are processed strictly in order: sequence numbering and duplicate
// detection both depend on earlier files' records being visible to later
// ones. Every failure is file-scoped; the batch always runs to the end.
func (s *Service) ProcessBatch(ctx context.Context, ownerID string, intakeDate time.Time, files []BatchFile, notify StatusFunc) (*BatchResult, error) {
	existing, err := s.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("loading ledger snapshot: %w", err)
	}

	yearMonth := intakeDate.Format("200601")
	run := &batchRun{
		ownerID:    ownerID,
		intakeDate: intakeDate.Format("2006-01-02"),
		yearMonth:  yearMonth,
		snap:       newSnapshot(existing),
		lastSeq:    startingSequence(existing, yearMonth),
		notify:     notify,
	}

	slog.Info("Starting batch", "owner", ownerID, "files", len(files), "intake_date", run.intakeDate, "last_sequence", run.lastSeq)

	result := &BatchResult{Files: make([]FileResult, len(files))}
	for i := range files {
		result.Files[i] = FileResult{Name: files[i].Name, Status: StatusQueued}
		if notify != nil {
			notify(i, StatusQueued)
		}
	}

	for i := range files {
		res := s.processFile(ctx, run, i, &files[i])
		result.Files[i] = res
		result.Saved += res.Saved
	}

	slog.Info("Batch complete", "owner", ownerID, "files", len(files), "saved", result.Saved)
	return result, nil
}

// processFile walks one file through queued -> reading -> extracting and into
// a terminal state, persisting records and updating the shared snapshot as it
// goes.
func (s *Service) processFile(ctx context.Context, run *batchRun, index int, file *BatchFile) FileResult {
	res := FileResult{Name: file.Name, Status: StatusQueued}
	setStatus := func(status FileStatus) {
		res.Status = status
		if run.notify != nil {
			run.notify(index, status)
		}
	}

	// fail marks the file failed and records a Failure — but only when the
	// file contributed nothing to the ledger; a partial save is not a
	// failure record.
	fail := func(err error, sourceFile string) FileResult {
		res.Error = err.Error()
		if res.Saved == 0 {
			failure := &Failure{
				OwnerID:     run.ownerID,
				FileName:    file.Name,
				Error:       err.Error(),
				SourceFile:  sourceFile,
				ContentType: file.ContentType,
				CreatedAt:   s.timeSource.Now(),
			}
			if _, ferr := s.db.InsertFailure(failure); ferr != nil {
				slog.Error("Failed to record failure", "file", file.Name, "error", ferr)
			}
		}
		setStatus(StatusFailed)
		return res
	}

	setStatus(StatusReading)
	data, err := readBatchFile(file)
	if err != nil {
		slog.Error("Failed to read upload", "file", file.Name, "error", err)
		return fail(err, "")
	}

	// The original document is stored before extraction so it is available
	// for operator review whichever way the file goes.
	sourceFile, err := s.storage.Save(fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(file.Name)), data)
	if err != nil {
		slog.Error("Failed to store upload", "file", file.Name, "error", err)
		return fail(fmt.Errorf("storing document: %w", err), "")
	}

	setStatus(StatusExtracting)
	invoice, err := s.extractor.Extract(ctx, data, file.ContentType)
	if err != nil {
		slog.Error("Failed to extract invoice",
			"file", file.Name,
			"content_type", file.ContentType,
			"file_size", len(data),
			"error", err,
		)
		return fail(err, sourceFile)
	}

	if invoice.InvoiceNumber == "" || invoice.InvoiceNumber == extraction.UnknownInvoiceNumber {
		return fail(errInvoiceNumberUnrecognized, sourceFile)
	}

	isSpecial := strings.Contains(invoice.InvoiceType, specialInvoiceMarker)
	shortNumber := invoice.InvoiceNumber
	if runes := []rune(shortNumber); len(runes) > invoiceShortNumberLen {
		shortNumber = string(runes[len(runes)-invoiceShortNumberLen:])
	}

	intakeNumber := ""
	for i := range invoice.Items {
		item := &invoice.Items[i]

		if run.snap.contains(invoice.InvoiceNumber, item.ItemName, item.Amount) {
			res.Duplicates++
			continue
		}

		purchaseAmount := item.Amount + item.TaxAmount
		intakeAmount := purchaseAmount
		if isSpecial {
			// Special VAT invoices post net of tax; the tax is deductible.
			intakeAmount = item.Amount
		}

		// One intake number per file, allocated on the first surviving item
		// so an all-duplicate file consumes none.
		if res.Saved == 0 {
			run.lastSeq++
			intakeNumber = formatIntakeNumber(run.yearMonth, run.lastSeq)
		}

		record := &Record{
			OwnerID:          run.ownerID,
			InvoiceType:      invoice.InvoiceType,
			InvoiceNumber:    invoice.InvoiceNumber,
			InvoiceDate:      invoice.Date,
			BuyerName:        invoice.Buyer.Name,
			BuyerTaxID:       invoice.Buyer.TaxID,
			SellerName:       invoice.Seller.Name,
			SellerTaxID:      invoice.Seller.TaxID,
			TotalAmountWords: invoice.Total.AmountWords,
			TotalAmountNum:   invoice.Total.AmountNum,
			Remark:           invoice.Remark,
			Issuer:           invoice.Issuer,
			ItemName:         item.ItemName,
			Specification:    item.Specification,
			Unit:             item.Unit,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			Amount:           item.Amount,
			TaxRate:          item.TaxRate,
			TaxAmount:        item.TaxAmount,
			SourceFile:       sourceFile,
			ContentType:      file.ContentType,
			CreatedAt:        s.timeSource.Now(),
			IntakeDate:       run.intakeDate,
			IntakeAmount:     intakeAmount,
			PurchaseAmount:   purchaseAmount,
			IntakeNumber:     intakeNumber,
		}
		if res.Saved == 0 {
			record.InvoiceShortNumber = shortNumber
		}

		if _, err := s.db.InsertRecord(record); err != nil {
			slog.Error("Failed to persist record", "file", file.Name, "invoice", invoice.InvoiceNumber, "error", err)
			return fail(fmt.Errorf("saving record: %w", err), sourceFile)
		}
		run.snap.add(record)
		res.Saved++
	}

	if res.Saved > 0 {
		setStatus(StatusSuccess)
		return res
	}

	// Nothing references the stored document, drop it.
	if err := s.storage.Delete(sourceFile); err != nil {
		slog.Warn("Failed to delete unused document", "file", sourceFile, "error", err)
	}
	if res.Duplicates > 0 {
		setStatus(StatusAllDuplicate)
	} else {
		// Extraction returned no items at all: nothing to save, nothing
		// failed.
		setStatus(StatusSuccess)
	}
	return res
}

func readBatchFile(file *BatchFile) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", file.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file.Name, err)
	}
	return data, nil
}
