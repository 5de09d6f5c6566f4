package renamer_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvfront/timing/renamer"
)

func TestRenamer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Renamer Suite")
}

var _ = Describe("Renamer", func() {
	var r *renamer.Renamer

	BeforeEach(func() {
		r = renamer.New(renamer.Config{NumLogRegs: 8, NumPhysRegs: 16, NumBranches: 4})
	})

	It("starts with an identity RMT/AMT mapping", func() {
		for i := 0; i < 8; i++ {
			Expect(r.LookupRsrc(i)).To(Equal(i))
		}
	})

	It("renames a destination to a fresh physical register that is not yet ready", func() {
		phys := r.RenameRdst(3)
		Expect(phys).To(BeNumerically(">=", 8))
		Expect(r.LookupRsrc(3)).To(Equal(phys))
		Expect(r.IsReady(phys)).To(BeFalse())
	})

	It("round-trips a value through write and read once marked ready", func() {
		phys := r.RenameRdst(2)
		r.Write(phys, 0xDEAD)
		r.SetReady(phys)
		Expect(r.IsReady(phys)).To(BeTrue())
		Expect(r.Read(phys)).To(Equal(uint64(0xDEAD)))
	})

	It("stalls renaming once the free list is exhausted", func() {
		// 16 phys - 8 log = 8 free registers.
		for i := 0; i < 8; i++ {
			Expect(r.StallReg(1)).To(BeFalse())
			r.RenameRdst(0)
		}
		Expect(r.StallReg(1)).To(BeTrue())
	})

	It("commits a dispatched instruction, publishing its mapping into the AMT", func() {
		phys := r.RenameRdst(1)
		idx := r.DispatchInst(0x1000, true, 1, phys, true, false, false, false, false)
		r.Write(phys, 42)
		r.SetReady(phys)
		r.SetCompleted(idx)

		ok, pc, load, _, _, _, _, _, _, _, _ := r.Precommit()
		Expect(ok).To(BeTrue())
		Expect(pc).To(Equal(uint64(0x1000)))
		Expect(load).To(BeTrue())

		r.Commit()
		ok, _, _, _, _, _, _, _, _, _, _ = r.Precommit()
		Expect(ok).To(BeFalse())
	})

	It("rolls back speculative renames on a branch misprediction", func() {
		before := r.LookupRsrc(4)
		branchID := r.Checkpoint()

		phys := r.RenameRdst(4)
		idx := r.DispatchInst(0x2000, true, 4, phys, false, false, true, false, false)
		Expect(r.LookupRsrc(4)).To(Equal(phys))
		Expect(r.GetBranchMask()).To(Equal(uint64(1) << uint(branchID)))

		r.Resolve(idx, branchID, false)

		Expect(r.LookupRsrc(4)).To(Equal(before))
		Expect(r.StallReg(1)).To(BeFalse())
		Expect(r.GetBranchMask()).To(Equal(uint64(0)))
	})

	It("keeps the rename live across a correctly predicted branch", func() {
		branchID := r.Checkpoint()
		phys := r.RenameRdst(5)
		idx := r.DispatchInst(0x3000, true, 5, phys, false, false, true, false, false)

		r.Resolve(idx, branchID, true)

		Expect(r.LookupRsrc(5)).To(Equal(phys))
	})

	It("stalls dispatch once the active list is exhausted", func() {
		for i := 0; i < 8; i++ {
			Expect(r.StallDispatch(1)).To(BeFalse())
			r.DispatchInst(uint64(i), false, 0, 0, false, false, false, false, false)
		}
		Expect(r.StallDispatch(1)).To(BeTrue())
	})

	It("squash restores the RMT from the AMT and clears all speculative state", func() {
		r.RenameRdst(6)
		r.Checkpoint()
		r.Squash()

		for i := 0; i < 8; i++ {
			Expect(r.LookupRsrc(i)).To(Equal(i))
		}
		Expect(r.StallBranch(4)).To(BeFalse())
	})
})
