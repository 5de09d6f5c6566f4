package gshare_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvfront/timing/gshare"
)

func TestGshare(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gshare Suite")
}

var _ = Describe("BHR", func() {
	It("masks to its configured width", func() {
		bhr := gshare.NewBHR(4)
		for i := 0; i < 10; i++ {
			bhr.Update(true)
		}
		Expect(bhr.Value()).To(BeNumerically("<", 1<<4))
	})

	It("restores a snapshot exactly", func() {
		bhr := gshare.NewBHR(8)
		bhr.Update(true)
		bhr.Update(false)
		snap := bhr.Value()
		bhr.Update(true)
		bhr.Update(true)
		bhr.Restore(snap)
		Expect(bhr.Value()).To(Equal(snap))
	})
})

var _ = Describe("CondTable", func() {
	var table *gshare.CondTable

	BeforeEach(func() {
		table = gshare.NewCondTable(8, 8, 10)
	})

	It("starts every counter strongly not-taken", func() {
		idx := table.Index(0x1000, 0)
		Expect(table.Predicted(idx)).To(BeFalse())
	})

	It("saturates at 3 after repeated taken updates", func() {
		idx := table.Index(0x1000, 0)
		for i := 0; i < 16; i++ {
			table.Update(idx, true)
		}
		Expect(table.Counter(idx)).To(Equal(uint8(3)))
	})

	It("saturates at 0 after repeated not-taken updates", func() {
		idx := table.Index(0x2000, 0)
		for i := 0; i < 16; i++ {
			table.Update(idx, false)
		}
		Expect(table.Counter(idx)).To(Equal(uint8(0)))
	})

	It("flips prediction only once the counter crosses the midpoint", func() {
		idx := table.Index(0x3000, 0)
		table.Update(idx, true)
		Expect(table.Predicted(idx)).To(BeFalse())
		table.Update(idx, true)
		Expect(table.Predicted(idx)).To(BeTrue())
	})
})

var _ = Describe("TargetTable", func() {
	It("remembers the last recorded target", func() {
		table := gshare.NewTargetTable(8, 8, 10)
		idx := table.Index(0x4000, 0)
		table.Update(idx, 0x8000)
		Expect(table.Predict(idx)).To(Equal(uint64(0x8000)))
	})
})
