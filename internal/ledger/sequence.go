package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// intakeNumberPrefix starts every intake number ("wz" for 外账/入库 numbering
// carried over from the paper process).
const intakeNumberPrefix = "wz"

// startingSequence returns the highest sequence already allocated for the
// given year-month across all records, regardless of owner. Returns 0 when
// the period has no records yet.
func startingSequence(records []*Record, yearMonth string) int {
	highest := 0
	prefix := intakeNumberPrefix + yearMonth
	for _, r := range records {
		if !strings.HasPrefix(r.IntakeNumber, prefix) {
			continue
		}
		if len(r.IntakeNumber) < 3 {
			continue
		}
		seq, err := strconv.Atoi(r.IntakeNumber[len(r.IntakeNumber)-3:])
		if err != nil {
			continue
		}
		if seq > highest {
			highest = seq
		}
	}
	return highest
}

// formatIntakeNumber builds the human-readable intake identifier,
// e.g. wz202407017.
func formatIntakeNumber(yearMonth string, seq int) string {
	return fmt.Sprintf("%s%s%03d", intakeNumberPrefix, yearMonth, seq)
}
