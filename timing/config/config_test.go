package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() must validate, got %v", err)
	}
}

func TestValidateRejectsNonPowerOfTwoFetchWidth(t *testing.T) {
	cfg := Default()
	cfg.FrontEnd.FetchWidth = 6
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-power-of-two fetch_width")
	}
}

func TestValidateRejectsNonPowerOfTwoBTBSets(t *testing.T) {
	cfg := Default()
	cfg.FrontEnd.BTBSets = 60
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-power-of-two btb_sets")
	}
}

func TestValidateRejectsTCMEntriesNotMultipleOfAssociativity(t *testing.T) {
	cfg := Default()
	cfg.FrontEnd.TCMEntries = 10
	cfg.FrontEnd.TCMAssociativity = 3
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for tcm_entries not a multiple of tcm_associativity")
	}
}

func TestValidateRejectsPhysRegsNotExceedingLogRegs(t *testing.T) {
	cfg := Default()
	cfg.Renamer.NumPhysRegs = cfg.Renamer.NumLogRegs
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when num_phys_regs does not exceed num_log_regs")
	}
}

func TestValidateRejectsOutOfRangeNumBranches(t *testing.T) {
	cfg := Default()
	cfg.Renamer.NumBranches = 65
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for num_branches out of [1,64]")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.FrontEnd.BTBSets = 128

	path := filepath.Join(t.TempDir(), "front-end.json")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.FrontEnd.BTBSets != 128 {
		t.Errorf("loaded BTBSets = %d, want 128", loaded.FrontEnd.BTBSets)
	}
	if loaded.Renamer.NumPhysRegs != cfg.Renamer.NumPhysRegs {
		t.Errorf("loaded NumPhysRegs = %d, want %d", loaded.Renamer.NumPhysRegs, cfg.Renamer.NumPhysRegs)
	}
}

func TestLoadRejectsInvalidOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"front_end":{"fetch_width":3}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject an invalid overlay")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected Load to error on a missing file")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.FrontEnd.BTBSets = 4096
	if cfg.FrontEnd.BTBSets == 4096 {
		t.Fatal("Clone must not alias the original config")
	}
}

func TestBPUConfigTranslation(t *testing.T) {
	cfg := Default()
	bc := cfg.BPUConfig()
	if bc.BTB.N != cfg.FrontEnd.FetchWidth {
		t.Errorf("BPUConfig BTB.N = %d, want %d", bc.BTB.N, cfg.FrontEnd.FetchWidth)
	}
	if bc.TCM.Entries != cfg.FrontEnd.TCMEntries {
		t.Errorf("BPUConfig TCM.Entries = %d, want %d", bc.TCM.Entries, cfg.FrontEnd.TCMEntries)
	}
	if bc.BQCapacity != cfg.FrontEnd.BQCapacity {
		t.Errorf("BPUConfig BQCapacity = %d, want %d", bc.BQCapacity, cfg.FrontEnd.BQCapacity)
	}
}

func TestRenamerConfigValueTranslation(t *testing.T) {
	cfg := Default()
	rc := cfg.RenamerConfigValue()
	if rc.NumLogRegs != cfg.Renamer.NumLogRegs ||
		rc.NumPhysRegs != cfg.Renamer.NumPhysRegs ||
		rc.NumBranches != cfg.Renamer.NumBranches {
		t.Errorf("RenamerConfigValue() = %+v, want fields matching %+v", rc, cfg.Renamer)
	}
}
