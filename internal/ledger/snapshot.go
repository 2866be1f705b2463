package ledger

import "math"

// amountEpsilon is the tolerance for comparing currency amounts. Amounts are
// float64 all the way from the model response, so two scans of the same
// invoice can disagree below a fen.
const amountEpsilon = 0.01

// snapshot is the in-memory working copy of the whole ledger used during one
// batch run. It is owned by a single batch call and mutated as records are
// persisted, so later files in the batch see earlier files' items — both for
// duplicate detection and for sequence numbering. There is exactly one writer,
// so no locking.
type snapshot struct {
	records []*Record
}

func newSnapshot(records []*Record) *snapshot {
	return &snapshot{records: records}
}

// contains reports whether a record with the same invoice number, item name
// and amount (within amountEpsilon) already exists. The check is
// owner-agnostic: two operators entering the same physical invoice is still a
// double entry.
func (s *snapshot) contains(invoiceNumber, itemName string, amount float64) bool {
	for _, r := range s.records {
		if r.InvoiceNumber == invoiceNumber &&
			r.ItemName == itemName &&
			math.Abs(r.Amount-amount) < amountEpsilon {
			return true
		}
	}
	return false
}

func (s *snapshot) add(r *Record) {
	s.records = append(s.records, r)
}
