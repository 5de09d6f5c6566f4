package decode

import "testing"

func TestDecodeKind(t *testing.T) {
	cases := []struct {
		name string
		insn Insn
		want Kind
	}{
		{"conditional branch", Insn{Category: Branch}, Conditional},
		{"jal to non-link register is a direct jump", Insn{Category: JAL, Rd: 5}, DirectJump},
		{"jal to the link register is a direct call", Insn{Category: JAL, Rd: linkRegister}, DirectCall},
		{"jalr rd=0 rs1=link is a return", Insn{Category: JALR, Rd: 0, Rs1: linkRegister}, Return},
		{"jalr rd=link is an indirect call", Insn{Category: JALR, Rd: linkRegister, Rs1: 5}, IndirectCall},
		{"jalr otherwise is an indirect jump", Insn{Category: JALR, Rd: 5, Rs1: 6}, IndirectJump},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DecodeKind(c.insn)
			if got != c.want {
				t.Errorf("DecodeKind(%+v) = %v, want %v", c.insn, got, c.want)
			}
		})
	}
}

func TestDecodeKindPanicsOnNonBranch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected DecodeKind to panic on a non-branch instruction")
		}
	}()
	DecodeKind(Insn{Category: Other})
}

func TestKindTaxonomyWireOrder(t *testing.T) {
	want := []Kind{Conditional, DirectJump, DirectCall, IndirectJump, IndirectCall, Return}
	for i, k := range want {
		if int(k) != i {
			t.Errorf("Kind %v has wire value %d, want %d", k, k, i)
		}
	}
}
