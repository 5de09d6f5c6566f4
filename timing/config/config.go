// Package config holds the JSON-serializable construction parameters for
// the front-end and renamer, following the same load/save/validate shape
// the teacher uses for its own timing configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/rvfront/timing/bpu"
	"github.com/sarchlab/rvfront/timing/btb"
	"github.com/sarchlab/rvfront/timing/renamer"
	"github.com/sarchlab/rvfront/timing/tcm"
)

// FrontEndConfig is the JSON-facing configuration for the BPU.
type FrontEndConfig struct {
	FetchWidth          int `json:"fetch_width"`
	MaxConditional      int `json:"max_conditional_branches"`
	BTBSets             int `json:"btb_sets"`
	BTBAssociativity    int `json:"btb_associativity"`
	TCMEntries          int `json:"tcm_entries"`
	TCMAssociativity    int `json:"tcm_associativity"`
	TCMWidth            int `json:"tcm_bundle_width"`
	TCMDiscardNoBranches bool `json:"tcm_discard_if_no_branches"`
	CondPCBits          uint `json:"cond_pc_bits"`
	CondBHRBits         uint `json:"cond_bhr_bits"`
	CondTableBits       uint `json:"cond_table_bits"`
	TargetPCBits        uint `json:"target_pc_bits"`
	TargetBHRBits       uint `json:"target_bhr_bits"`
	TargetTableBits     uint `json:"target_table_bits"`
	BHRWidth            uint `json:"bhr_width"`
	RASSize             int  `json:"ras_size"`
	BQCapacity          int  `json:"bq_capacity"`
}

// RenamerConfig is the JSON-facing configuration for the register renamer.
type RenamerConfig struct {
	NumLogRegs  int `json:"num_log_regs"`
	NumPhysRegs int `json:"num_phys_regs"`
	NumBranches int `json:"num_branches"`
}

// Config is the top-level configuration document.
type Config struct {
	FrontEnd FrontEndConfig `json:"front_end"`
	Renamer  RenamerConfig  `json:"renamer"`
}

// Default returns the reference construction parameters.
func Default() *Config {
	return &Config{
		FrontEnd: FrontEndConfig{
			FetchWidth:           8,
			MaxConditional:       4,
			BTBSets:              64,
			BTBAssociativity:     4,
			TCMEntries:           256,
			TCMAssociativity:     4,
			TCMWidth:             16,
			TCMDiscardNoBranches: false,
			CondPCBits:           12,
			CondBHRBits:          12,
			CondTableBits:        14,
			TargetPCBits:         12,
			TargetBHRBits:        12,
			TargetTableBits:      14,
			BHRWidth:             16,
			RASSize:              32,
			BQCapacity:           64,
		},
		Renamer: RenamerConfig{
			NumLogRegs:  32,
			NumPhysRegs: 128,
			NumBranches: 16,
		},
	}
}

// Load reads a JSON configuration file, overlaying it onto Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks the fetch width, conditional-branch count, BTB sets and
// associativity, TCM entries and associativity, RAS size, BQ capacity, and
// renamer sizes. The TCM bundle width, the gshare and BHR bit widths, and
// num_log_regs on its own are not checked.
func (c *Config) Validate() error {
	fe := c.FrontEnd
	if fe.FetchWidth <= 0 || fe.FetchWidth&(fe.FetchWidth-1) != 0 {
		return fmt.Errorf("fetch_width must be a positive power of two, got %d", fe.FetchWidth)
	}
	if fe.MaxConditional <= 0 {
		return fmt.Errorf("max_conditional_branches must be positive")
	}
	if fe.BTBSets <= 0 || fe.BTBSets&(fe.BTBSets-1) != 0 {
		return fmt.Errorf("btb_sets must be a positive power of two, got %d", fe.BTBSets)
	}
	if fe.BTBAssociativity <= 0 {
		return fmt.Errorf("btb_associativity must be positive")
	}
	if fe.TCMEntries <= 0 || fe.TCMAssociativity <= 0 || fe.TCMEntries%fe.TCMAssociativity != 0 {
		return fmt.Errorf("tcm_entries must be a positive multiple of tcm_associativity")
	}
	if fe.RASSize <= 0 {
		return fmt.Errorf("ras_size must be positive")
	}
	if fe.BQCapacity <= 0 {
		return fmt.Errorf("bq_capacity must be positive")
	}
	r := c.Renamer
	if r.NumPhysRegs <= r.NumLogRegs {
		return fmt.Errorf("num_phys_regs must exceed num_log_regs")
	}
	if r.NumBranches < 1 || r.NumBranches > 64 {
		return fmt.Errorf("num_branches must be in [1, 64]")
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// BPUConfig translates the JSON-facing FrontEndConfig into bpu.Config.
func (c *Config) BPUConfig() bpu.Config {
	fe := c.FrontEnd
	return bpu.Config{
		BTB: btb.Config{
			N:             fe.FetchWidth,
			Sets:          fe.BTBSets,
			Associativity: fe.BTBAssociativity,
			M:             fe.MaxConditional,
		},
		TCM: tcm.Config{
			Entries:             fe.TCMEntries,
			Associativity:       fe.TCMAssociativity,
			N:                   fe.TCMWidth,
			M:                   fe.MaxConditional,
			DiscardIfNoBranches: fe.TCMDiscardNoBranches,
		},
		CondPCBits:      fe.CondPCBits,
		CondBHRBits:     fe.CondBHRBits,
		CondTableBits:   fe.CondTableBits,
		TargetPCBits:    fe.TargetPCBits,
		TargetBHRBits:   fe.TargetBHRBits,
		TargetTableBits: fe.TargetTableBits,
		BHRWidth:        fe.BHRWidth,
		RASSize:         fe.RASSize,
		BQCapacity:      fe.BQCapacity,
	}
}

// RenamerConfigValue translates the JSON-facing RenamerConfig into
// renamer.Config.
func (c *Config) RenamerConfigValue() renamer.Config {
	return renamer.Config{
		NumLogRegs:  c.Renamer.NumLogRegs,
		NumPhysRegs: c.Renamer.NumPhysRegs,
		NumBranches: c.Renamer.NumBranches,
	}
}
