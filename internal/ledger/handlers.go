package ledger

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// maxBatchSize bounds one multipart upload. Batches are many high-resolution
// phone photos at once.
const maxBatchSize = int64(200 << 20) // 200MB

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

func pathID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// contentTypeFor falls back to the filename extension when the upload did not
// declare a MIME type.
func contentTypeFor(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleProcessBatch ingests a multipart batch of invoice files. Form fields:
// "files" (repeated) and "intake_date" (YYYY-MM-DD, defaults to today).
func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBatchSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		message := "Error parsing form"
		if err.Error() == "http: request body too large" {
			message = "Batch is too large. Maximum total size is 200MB."
		}
		writeJSONError(w, http.StatusBadRequest, message)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSONError(w, http.StatusBadRequest, "No files were selected. Please choose files to upload.")
		return
	}

	intakeDate := time.Now()
	if v := r.FormValue("intake_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid intake_date, expected YYYY-MM-DD")
			return
		}
		intakeDate = parsed
	}

	files := make([]BatchFile, 0, len(headers))
	for _, header := range headers {
		files = append(files, BatchFile{
			Name:        header.Filename,
			ContentType: contentTypeFor(header.Header.Get("Content-Type"), header.Filename),
			Open: func() (io.ReadCloser, error) {
				return header.Open()
			},
		})
	}

	notify := func(index int, status FileStatus) {
		slog.Info("Batch progress", "file", files[index].Name, "status", status)
	}

	result, err := s.service.ProcessBatch(r.Context(), requestOwner(r), intakeDate, files, notify)
	if err != nil {
		slog.Error("Error processing batch", "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListRecords returns ledger records, newest first. The owner query
// parameter scopes the listing; without it all operators' records are
// returned.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords(r.URL.Query().Get("owner"))
	if err != nil {
		slog.Error("Error listing records", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// handleUpdateRecord replaces a record in full
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		corsError(w, "Record ID required", http.StatusBadRequest)
		return
	}

	var record Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	record.ID = id

	if err := s.service.UpdateRecord(&record); err != nil {
		slog.Error("Error updating record", "id", id, "error", err)
		corsError(w, "Error updating record", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, &record)
}

// handleDeleteRecord deletes a single record
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		corsError(w, "Record ID required", http.StatusBadRequest)
		return
	}

	if _, err := s.service.DeleteRecords([]uint64{id}); err != nil {
		slog.Error("Error deleting record", "id", id, "error", err)
		corsError(w, "Error deleting record", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleBatchDeleteRecords deletes many records in one call
func (s *Server) handleBatchDeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []uint64 `json:"ids"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	deleted, err := s.service.DeleteRecords(req.IDs)
	if err != nil {
		slog.Error("Error deleting records", "error", err)
		corsError(w, "Error deleting records", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// handleGetRecordFile serves the original document of a record for preview
func (s *Server) handleGetRecordFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		corsError(w, "Record ID required", http.StatusBadRequest)
		return
	}

	data, contentType, err := s.service.RecordDocument(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleListFailures returns failure records, newest first
func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := s.service.ListFailures(r.URL.Query().Get("owner"))
	if err != nil {
		slog.Error("Error listing failures", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, failures)
}

// handleDeleteFailure deletes a failure record and its stored document
func (s *Server) handleDeleteFailure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		corsError(w, "Failure ID required", http.StatusBadRequest)
		return
	}

	if err := s.service.DeleteFailure(id); err != nil {
		slog.Error("Error deleting failure", "id", id, "error", err)
		corsError(w, "Error deleting failure", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetFailureFile serves the original document of a failed file
func (s *Server) handleGetFailureFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		corsError(w, "Failure ID required", http.StatusBadRequest)
		return
	}

	data, contentType, err := s.service.FailureDocument(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
