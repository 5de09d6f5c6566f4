package tcm_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvfront/timing/btb"
	"github.com/sarchlab/rvfront/timing/decode"
	"github.com/sarchlab/rvfront/timing/tcm"
)

func TestTCM(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "TCM Suite")
}

var _ = Describe("TCM", func() {
	var tc *tcm.TCM

	BeforeEach(func() {
		tc = tcm.New(tcm.Config{Entries: 8, Associativity: 2, N: 4, M: 2})
	})

	It("misses when nothing has been filled", func() {
		hit, _, _, _ := tc.Lookup(0x1000, 0)
		Expect(hit).To(BeFalse())
	})

	It("keeps accreting past a taken conditional branch into a longer trace", func() {
		// Mirrors a trace that takes a branch, follows a direct jump, then
		// hits a second (not-taken) conditional that reaches the M=2 cap --
		// a taken branch must not itself terminate the fill.
		bundle := []btb.Desc{
			{Hit: true, Kind: decode.Conditional, Target: 0x1300},
			{Hit: true, Kind: decode.DirectJump, Target: 0x1400},
			{Hit: true, Kind: decode.Conditional, Target: 0x1500},
		}
		// bit0 = 1 (first conditional taken), bit1 = 0 (second not taken).
		done := tc.LineFillBuffer(0x1000, 0x1, 3, bundle)
		Expect(done).To(BeTrue())

		hit, length, _, nextPC := tc.Lookup(0x1000, 0x1)
		Expect(hit).To(BeTrue())
		Expect(length).To(Equal(3))
		Expect(nextPC).To(Equal(uint64(0x1404)))
	})

	It("misses when the masked prediction does not match the recorded one", func() {
		bundle := []btb.Desc{
			{Hit: true, Kind: decode.Conditional, Target: 0x2100},
			{Hit: true, Kind: decode.Conditional, Target: 0x2200},
		}
		// bit0 = 1 (taken), bit1 = 0 (not taken) -- the second conditional
		// reaches the M=2 cap and completes the fill.
		done := tc.LineFillBuffer(0x2000, 0x1, 2, bundle)
		Expect(done).To(BeTrue())

		hit, _, _, _ := tc.Lookup(0x2000, 0x0)
		Expect(hit).To(BeFalse())
	})

	It("records the resolved fall-through pc once the conditional-branch cap is reached without a taken branch", func() {
		bundle := []btb.Desc{
			{Hit: true, Kind: decode.Conditional, Target: 0x1300},
			{Hit: true, Kind: decode.DirectJump, Target: 0x1400},
			{Hit: true, Kind: decode.Conditional, Target: 0x1500},
		}
		// Both conditionals predicted not-taken; the second one reaches the
		// M=2 cap, which completes the fill automatically.
		done := tc.LineFillBuffer(0x3000, 0x0, 3, bundle)
		Expect(done).To(BeTrue())

		hit, length, _, nextPC := tc.Lookup(0x3000, 0x0)
		Expect(hit).To(BeTrue())
		Expect(length).To(Equal(3))
		Expect(nextPC).To(Equal(uint64(0x1404)))
	})
})
