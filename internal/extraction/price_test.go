package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParsePrice", func() {
	DescribeTable("finding an amount",
		func(input string, expected float64) {
			v, ok := ParsePrice(input)
			Expect(ok).To(BeTrue())
			Expect(v).To(BeNumerically("~", expected, 0.001))
		},
		Entry("plain decimal", "4.49", 4.49),
		Entry("dollar prefixed", "$4.49", 4.49),
		Entry("surrounded by text", "Total: $42.10 paid", 42.10),
		Entry("comma grouping", "$1,234.56", 1234.56),
		Entry("whole number", "12", 12.0),
		Entry("single fraction digit", "3.5", 3.5),
		Entry("more than two fraction digits", "12.345", 12.34),
		Entry("first of several amounts", "2.00 x 3.50", 2.00),
		Entry("bare fraction", ".99", 0.99),
		Entry("dollar prefixed bare fraction", "$.99", 0.99),
		Entry("bare single fraction digit", "$.5", 0.5),
	)

	When("the input has no digits", func() {
		It("reports no value", func() {
			_, ok := ParsePrice("free")
			Expect(ok).To(BeFalse())
		})
	})

	When("the input is empty", func() {
		It("reports no value", func() {
			_, ok := ParsePrice("")
			Expect(ok).To(BeFalse())
		})
	})
})

var _ = Describe("findAmounts", func() {
	It("returns every two-fraction-digit amount", func() {
		Expect(findAmounts("Subtotal 4.49 Tax $0.36")).To(Equal([]float64{4.49, 0.36}))
	})

	It("ignores whole numbers", func() {
		Expect(findAmounts("Table 12 Guests 4")).To(BeEmpty())
	})
})
