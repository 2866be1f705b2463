package ledger

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/qiwen-ledger/invoice-intake/internal/extraction"
)

// multipartBatch builds a batch upload request body
func multipartBatch(intakeDate string, names ...string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range names {
		part, err := writer.CreateFormFile("files", name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("scan of " + name))
		Expect(err).NotTo(HaveOccurred())
	}
	if intakeDate != "" {
		Expect(writer.WriteField("intake_date", intakeDate)).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db        *mockDB
		storage   *mockStorage
		extractor *mockExtractor
		server    *Server
		basicAuth BasicAuth

		recorder *httptest.ResponseRecorder
		request  *http.Request
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = &mockExtractor{}
		basicAuth = BasicAuth{}
		recorder = httptest.NewRecorder()
	})

	JustBeforeEach(func() {
		timeSrc := &mockTimeSource{now: time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)}
		service := NewServiceWithDeps(db, extractor, storage, &mockIDGenerator{}, timeSrc)
		server = NewServerWithMux(service, basicAuth, http.NewServeMux())
		server.ServeHTTP(recorder, request)
	})

	Describe("POST /api/batches", func() {
		BeforeEach(func() {
			extractor.invoices = []*extraction.Invoice{
				{
					InvoiceType:   "增值税普通发票",
					InvoiceNumber: "24312000000012345678",
					Items: []extraction.LineItem{
						{ItemName: "办公椅", Amount: 200, TaxAmount: 26},
					},
				},
			}
			body, contentType := multipartBatch("2024-07-20", "invoice.jpg")
			request = httptest.NewRequest("POST", "/api/batches", body)
			request.Header.Set("Content-Type", contentType)
		})

		It("returns the batch result", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))

			var result BatchResult
			Expect(json.Unmarshal(recorder.Body.Bytes(), &result)).To(Succeed())
			Expect(result.Saved).To(Equal(1))
			Expect(result.Files).To(HaveLen(1))
			Expect(result.Files[0].Status).To(Equal(StatusSuccess))
		})

		It("feeds the uploaded bytes to extraction and storage", func() {
			Expect(extractor.received).To(HaveLen(1))
			Expect(extractor.received[0]).To(Equal([]byte("scan of invoice.jpg")))
			Expect(storage.files["doc-1_invoice.jpg"]).To(Equal([]byte("scan of invoice.jpg")))
		})

		It("resolves the content type from the filename extension", func() {
			Expect(db.records[0].ContentType).To(Equal("image/jpeg"))
		})

		It("records the chosen intake date", func() {
			Expect(db.records).To(HaveLen(1))
			Expect(db.records[0].IntakeDate).To(Equal("2024-07-20"))
			Expect(db.records[0].IntakeNumber).To(Equal("wz202407001"))
		})

		It("attributes unauthenticated batches to the local operator", func() {
			Expect(db.records[0].OwnerID).To(Equal("local"))
		})

		When("basic auth is configured", func() {
			BeforeEach(func() {
				basicAuth = BasicAuth{Username: "alice", Password: "secret"}
				request.SetBasicAuth("alice", "secret")
			})

			It("attributes records to the authenticated operator", func() {
				Expect(recorder.Code).To(Equal(http.StatusOK))
				Expect(db.records[0].OwnerID).To(Equal("alice"))
			})
		})

		When("credentials are wrong", func() {
			BeforeEach(func() {
				basicAuth = BasicAuth{Username: "alice", Password: "secret"}
				request.SetBasicAuth("alice", "wrong")
			})

			It("rejects the request", func() {
				Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
				Expect(db.records).To(BeEmpty())
			})
		})

		When("no files are attached", func() {
			BeforeEach(func() {
				body, contentType := multipartBatch("2024-07-20")
				request = httptest.NewRequest("POST", "/api/batches", body)
				request.Header.Set("Content-Type", contentType)
			})

			It("returns a bad request", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})

		When("the intake date is malformed", func() {
			BeforeEach(func() {
				body, contentType := multipartBatch("20-07-2024", "invoice.jpg")
				request = httptest.NewRequest("POST", "/api/batches", body)
				request.Header.Set("Content-Type", contentType)
			})

			It("returns a bad request", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
				Expect(recorder.Body.String()).To(ContainSubstring("intake_date"))
			})
		})
	})

	Describe("GET /api/records", func() {
		BeforeEach(func() {
			base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
			db.records = []*Record{
				{ID: 1, OwnerID: "alice", ItemName: "甲", CreatedAt: base},
				{ID: 2, OwnerID: "bob", ItemName: "乙", CreatedAt: base.Add(time.Hour)},
			}
			db.recordSeq = 2
			request = httptest.NewRequest("GET", "/api/records", nil)
		})

		It("returns all records newest first", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))

			var records []*Record
			Expect(json.Unmarshal(recorder.Body.Bytes(), &records)).To(Succeed())
			Expect(records).To(HaveLen(2))
			Expect(records[0].ItemName).To(Equal("乙"))
		})

		When("an owner filter is given", func() {
			BeforeEach(func() {
				request = httptest.NewRequest("GET", "/api/records?owner=alice", nil)
			})

			It("scopes the listing", func() {
				var records []*Record
				Expect(json.Unmarshal(recorder.Body.Bytes(), &records)).To(Succeed())
				Expect(records).To(HaveLen(1))
				Expect(records[0].OwnerID).To(Equal("alice"))
			})
		})
	})

	Describe("PUT /api/records/{id}", func() {
		BeforeEach(func() {
			db.records = []*Record{{ID: 1, ItemName: "钢材", Amount: 100}}
			db.recordSeq = 1

			payload, err := json.Marshal(&Record{ItemName: "不锈钢材", Amount: 100, UseUnit: "一车间"})
			Expect(err).NotTo(HaveOccurred())
			request = httptest.NewRequest("PUT", "/api/records/1", bytes.NewReader(payload))
		})

		It("updates the record", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(db.records[0].ItemName).To(Equal("不锈钢材"))
			Expect(db.records[0].UseUnit).To(Equal("一车间"))
		})

		It("takes the id from the path, not the body", func() {
			Expect(db.records[0].ID).To(Equal(uint64(1)))
		})

		When("the id is not numeric", func() {
			BeforeEach(func() {
				request = httptest.NewRequest("PUT", "/api/records/abc", strings.NewReader("{}"))
			})

			It("returns a bad request", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("DELETE /api/records/{id}", func() {
		BeforeEach(func() {
			db.records = []*Record{{ID: 1, ItemName: "甲"}}
			db.recordSeq = 1
			request = httptest.NewRequest("DELETE", "/api/records/1", nil)
		})

		It("deletes the record", func() {
			Expect(recorder.Code).To(Equal(http.StatusNoContent))
			Expect(db.records).To(BeEmpty())
		})
	})

	Describe("POST /api/records/batch-delete", func() {
		BeforeEach(func() {
			db.records = []*Record{
				{ID: 1, ItemName: "甲"},
				{ID: 2, ItemName: "乙"},
				{ID: 3, ItemName: "丙"},
			}
			db.recordSeq = 3
			request = httptest.NewRequest("POST", "/api/records/batch-delete", strings.NewReader(`{"ids":[1,3,99]}`))
		})

		It("deletes the named records and reports the count", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Body.String()).To(MatchJSON(`{"deleted":2}`))
			Expect(db.records).To(HaveLen(1))
			Expect(db.records[0].ItemName).To(Equal("乙"))
		})

		When("the body is empty", func() {
			BeforeEach(func() {
				request = httptest.NewRequest("POST", "/api/records/batch-delete", strings.NewReader(`{"ids":[]}`))
			})

			It("returns a bad request", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("GET /api/records/{id}/file", func() {
		BeforeEach(func() {
			db.records = []*Record{{ID: 1, SourceFile: "doc-1_scan.jpg", ContentType: "image/jpeg"}}
			db.recordSeq = 1
			storage.files["doc-1_scan.jpg"] = []byte("jpeg bytes")
			request = httptest.NewRequest("GET", "/api/records/1/file", nil)
		})

		It("serves the original document", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Header().Get("Content-Type")).To(Equal("image/jpeg"))
			Expect(recorder.Body.Bytes()).To(Equal([]byte("jpeg bytes")))
		})

		When("the record does not exist", func() {
			BeforeEach(func() {
				request = httptest.NewRequest("GET", "/api/records/99/file", nil)
			})

			It("returns not found", func() {
				Expect(recorder.Code).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("GET /api/failures", func() {
		BeforeEach(func() {
			db.failures = []*Failure{
				{ID: 1, OwnerID: "alice", FileName: "bad.jpg", Error: "发票号码无法识别"},
			}
			db.failureSeq = 1
			request = httptest.NewRequest("GET", "/api/failures", nil)
		})

		It("returns the failure log", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))

			var failures []*Failure
			Expect(json.Unmarshal(recorder.Body.Bytes(), &failures)).To(Succeed())
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].Error).To(Equal("发票号码无法识别"))
		})
	})

	Describe("DELETE /api/failures/{id}", func() {
		BeforeEach(func() {
			db.failures = []*Failure{{ID: 1, FileName: "bad.jpg", SourceFile: "doc-9_bad.jpg"}}
			db.failureSeq = 1
			storage.files["doc-9_bad.jpg"] = []byte("jpeg")
			request = httptest.NewRequest("DELETE", "/api/failures/1", nil)
		})

		It("removes the failure and its document", func() {
			Expect(recorder.Code).To(Equal(http.StatusNoContent))
			Expect(db.failures).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})
	})

	Describe("GET /api/failures/{id}/file", func() {
		BeforeEach(func() {
			db.failures = []*Failure{{ID: 1, SourceFile: "doc-9_bad.jpg", ContentType: "image/jpeg"}}
			db.failureSeq = 1
			storage.files["doc-9_bad.jpg"] = []byte("jpeg bytes")
			request = httptest.NewRequest("GET", "/api/failures/1/file", nil)
		})

		It("serves the original document", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Header().Get("Content-Type")).To(Equal("image/jpeg"))
			Expect(recorder.Body.Bytes()).To(Equal([]byte("jpeg bytes")))
		})
	})
})
