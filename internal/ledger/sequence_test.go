package ledger

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("startingSequence", func() {
	It("returns zero for an empty ledger", func() {
		Expect(startingSequence(nil, "202407")).To(Equal(0))
	})

	It("returns the highest sequence of the period", func() {
		records := []*Record{
			{IntakeNumber: "wz202407003"},
			{IntakeNumber: "wz202407012"},
			{IntakeNumber: "wz202407007"},
		}
		Expect(startingSequence(records, "202407")).To(Equal(12))
	})

	It("ignores records from other periods", func() {
		records := []*Record{
			{IntakeNumber: "wz202406099"},
			{IntakeNumber: "wz202407002"},
			{IntakeNumber: "wz202408001"},
		}
		Expect(startingSequence(records, "202407")).To(Equal(2))
	})

	It("ignores records without an intake number", func() {
		records := []*Record{
			{IntakeNumber: ""},
			{IntakeNumber: "wz202407004"},
		}
		Expect(startingSequence(records, "202407")).To(Equal(4))
	})

	It("counts past the three-digit pad", func() {
		records := []*Record{
			{IntakeNumber: "wz202407999"},
		}
		Expect(startingSequence(records, "202407")).To(Equal(999))
	})
})

var _ = Describe("formatIntakeNumber", func() {
	It("zero-pads the sequence to three digits", func() {
		Expect(formatIntakeNumber("202407", 1)).To(Equal("wz202407001"))
		Expect(formatIntakeNumber("202407", 42)).To(Equal("wz202407042"))
		Expect(formatIntakeNumber("202412", 137)).To(Equal("wz202412137"))
	})
})

var _ = Describe("snapshot", func() {
	var snap *snapshot

	BeforeEach(func() {
		snap = newSnapshot([]*Record{
			{InvoiceNumber: "10000001", ItemName: "钢材", Amount: 100.00},
		})
	})

	It("matches on invoice number, item name and amount", func() {
		Expect(snap.contains("10000001", "钢材", 100.00)).To(BeTrue())
	})

	It("tolerates amount drift below a cent", func() {
		Expect(snap.contains("10000001", "钢材", 100.005)).To(BeTrue())
		Expect(snap.contains("10000001", "钢材", 99.995)).To(BeTrue())
	})

	It("rejects drift of a cent or more", func() {
		Expect(snap.contains("10000001", "钢材", 100.02)).To(BeFalse())
	})

	It("distinguishes item names on the same invoice", func() {
		Expect(snap.contains("10000001", "水泥", 100.00)).To(BeFalse())
	})

	It("distinguishes invoice numbers for the same item", func() {
		Expect(snap.contains("10000002", "钢材", 100.00)).To(BeFalse())
	})

	It("sees records added during the run", func() {
		snap.add(&Record{InvoiceNumber: "10000003", ItemName: "砂石", Amount: 55})
		Expect(snap.contains("10000003", "砂石", 55)).To(BeTrue())
	})
})
