package ledger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/qiwen-ledger/invoice-intake/internal/extraction"
)

// IDGenerator generates unique names for stored documents
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles ledger operations
type Service struct {
	db          DB
	extractor   extraction.Extractor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor extraction.Extractor, storage Storage) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor extraction.Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameStripRe = regexp.MustCompile(`[^\p{Han}a-zA-Z0-9\s\-_]`)
	filenameSpaceRe = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename for storage. Invoice scans come off
// phones with long generated names and the originals are frequently Chinese,
// so Han characters are kept.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = filenameStripRe.ReplaceAllString(base, "")
	base = filenameSpaceRe.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if runes := []rune(base); len(runes) > 50 {
		base = string(runes[:50])
	}
	if base == "" {
		base = "invoice"
	}

	return base + ext
}

// ListRecords returns ledger records, newest first, optionally filtered to one
// owner. Deduplication and numbering remain owner-agnostic; this filter only
// scopes what an operator sees.
func (s *Service) ListRecords(ownerID string) ([]*Record, error) {
	records, err := s.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	if ownerID != "" {
		filtered := make([]*Record, 0, len(records))
		for _, r := range records {
			if r.OwnerID == ownerID {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// UpdateRecord replaces a record in full (the edit model is whole-row
// replacement, matching how operators correct a misread line).
func (s *Service) UpdateRecord(record *Record) error {
	if record.ID == 0 {
		return fmt.Errorf("record id is required")
	}
	if err := s.db.UpdateRecord(record); err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	return nil
}

// DeleteRecords removes records by id and returns how many were deleted.
// Source documents are left in storage because several records of one file
// share a document.
func (s *Service) DeleteRecords(ids []uint64) (int, error) {
	deleted, err := s.db.DeleteRecords(ids)
	if err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}
	return deleted, nil
}

// RecordDocument retrieves the original uploaded document for a record.
func (s *Service) RecordDocument(id uint64) ([]byte, string, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}
	if record.SourceFile == "" {
		return nil, "", fmt.Errorf("record %d has no source document", id)
	}
	data, err := s.storage.Get(record.SourceFile)
	if err != nil {
		return nil, "", fmt.Errorf("getting record document: %w", err)
	}
	return data, record.ContentType, nil
}

// ListFailures returns failure records, newest first, optionally filtered to
// one owner.
func (s *Service) ListFailures(ownerID string) ([]*Failure, error) {
	failures, err := s.db.ListFailures()
	if err != nil {
		return nil, fmt.Errorf("listing failures: %w", err)
	}
	if ownerID != "" {
		filtered := make([]*Failure, 0, len(failures))
		for _, f := range failures {
			if f.OwnerID == ownerID {
				filtered = append(filtered, f)
			}
		}
		failures = filtered
	}
	sort.SliceStable(failures, func(i, j int) bool {
		return failures[i].CreatedAt.After(failures[j].CreatedAt)
	})
	return failures, nil
}

// DeleteFailure removes a failure record and its stored document. A failure's
// document is never shared with ledger records, so it goes with the record.
func (s *Service) DeleteFailure(id uint64) error {
	failure, err := s.db.GetFailure(id)
	if err != nil {
		return fmt.Errorf("getting failure for deletion: %w", err)
	}

	if failure.SourceFile != "" {
		if err := s.storage.Delete(failure.SourceFile); err != nil {
			slog.Warn("Failed to delete failure document", "file", failure.SourceFile, "error", err)
		}
	}

	if err := s.db.DeleteFailure(id); err != nil {
		return fmt.Errorf("deleting failure: %w", err)
	}
	return nil
}

// FailureDocument retrieves the original uploaded document for a failure.
func (s *Service) FailureDocument(id uint64) ([]byte, string, error) {
	failure, err := s.db.GetFailure(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting failure: %w", err)
	}
	if failure.SourceFile == "" {
		return nil, "", fmt.Errorf("failure %d has no source document", id)
	}
	data, err := s.storage.Get(failure.SourceFile)
	if err != nil {
		return nil, "", fmt.Errorf("getting failure document: %w", err)
	}
	return data, failure.ContentType, nil
}
