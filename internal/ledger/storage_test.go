package ledger

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		basePath string
		storage  *LocalStorage
	)

	BeforeEach(func() {
		basePath = filepath.Join(GinkgoT().TempDir(), "documents")
		var err error
		storage, err = NewLocalStorage(basePath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the base directory", func() {
		info, err := os.Stat(basePath)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("saves and retrieves a document", func() {
		path, err := storage.Save("doc-1_发票.pdf", []byte("%PDF-1.4"))
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("doc-1_发票.pdf"))

		data, err := storage.Get(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("%PDF-1.4")))
	})

	It("deletes a document", func() {
		path, err := storage.Save("doc-2_scan.jpg", []byte("jpeg"))
		Expect(err).NotTo(HaveOccurred())

		Expect(storage.Delete(path)).To(Succeed())

		_, err = storage.Get(path)
		Expect(err).To(HaveOccurred())
	})

	It("errors when getting a missing document", func() {
		_, err := storage.Get("nope.pdf")
		Expect(err).To(HaveOccurred())
	})

	It("errors when deleting a missing document", func() {
		Expect(storage.Delete("nope.pdf")).NotTo(Succeed())
	})

	It("rejects names that would escape the document directory", func() {
		_, err := storage.Save("../escape.pdf", []byte("x"))
		Expect(err).To(HaveOccurred())

		_, err = storage.Save("nested/escape.pdf", []byte("x"))
		Expect(err).To(HaveOccurred())

		_, err = storage.Get("../../etc/passwd")
		Expect(err).To(HaveOccurred())

		Expect(storage.Delete("..")).NotTo(Succeed())
	})
})

var _ = Describe("sanitizeFilename", func() {
	It("keeps Han characters and the extension", func() {
		Expect(sanitizeFilename("增值税发票.pdf")).To(Equal("增值税发票.pdf"))
	})

	It("strips characters unsafe for the filesystem", func() {
		Expect(sanitizeFilename("scan/..\\#1?.jpg")).To(Equal("scan1.jpg"))
	})

	It("collapses runs of whitespace", func() {
		Expect(sanitizeFilename("my   invoice  scan.png")).To(Equal("my invoice scan.png"))
	})

	It("falls back to a default name when nothing survives", func() {
		Expect(sanitizeFilename("###.pdf")).To(Equal("invoice.pdf"))
	})

	It("truncates very long names", func() {
		long := ""
		for i := 0; i < 80; i++ {
			long += "发"
		}
		got := sanitizeFilename(long + ".jpg")
		Expect([]rune(got)).To(HaveLen(54)) // 50 runes + ".jpg"
	})
})
