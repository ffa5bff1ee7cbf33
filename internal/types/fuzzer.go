package types

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownFuzzer = errors.New("unknown fuzzer")

// FuzzerKind is the closed set of fuzzing engines an experiment can drive.
type FuzzerKind int

const (
	AFL FuzzerKind = iota
	AFLPP
	HAVOC
	NEUZZ
	NEUZZPP
	PREFUZZ
	DARWIN
	MOPT
	MOPTPP
)

// BuildVariant is the instrumentation flavour a target binary was compiled with.
type BuildVariant string

const (
	VariantAFL   BuildVariant = "afl"
	VariantAFLPP BuildVariant = "aflpp"
)

type fuzzerInfo struct {
	name       string
	entryPoint string // launch script inside the experiment image
	variant    BuildVariant
	gpu        bool // ML-based engines that can make use of a GPU
}

var fuzzerTable = [...]fuzzerInfo{
	AFL:     {"AFL", "/afl/run_afl.py", VariantAFL, false},
	AFLPP:   {"AFLPP", "/aflpp/run_aflpp.py", VariantAFLPP, false},
	HAVOC:   {"HAVOC", "/havoc/run_havoc.py", VariantAFL, false},
	NEUZZ:   {"NEUZZ", "/neuzz/run_neuzz.py", VariantAFL, true},
	NEUZZPP: {"NEUZZPP", "/neuzzpp/run_neuzzpp.py", VariantAFLPP, true},
	PREFUZZ: {"PREFUZZ", "/prefuzz/run_prefuzz.py", VariantAFL, true},
	DARWIN:  {"DARWIN", "/darwin/run_darwin.py", VariantAFL, false},
	MOPT:    {"MOPT", "/mopt/run_mopt.py", VariantAFL, false},
	MOPTPP:  {"MOPTPP", "/moptpp/run_moptpp.py", VariantAFLPP, false},
}

// AllFuzzers lists every supported kind in declaration order.
func AllFuzzers() []FuzzerKind {
	kinds := make([]FuzzerKind, len(fuzzerTable))
	for i := range fuzzerTable {
		kinds[i] = FuzzerKind(i)
	}
	return kinds
}

// ParseFuzzerKind maps a configuration name (case-insensitive) to its kind.
func ParseFuzzerKind(name string) (FuzzerKind, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, info := range fuzzerTable {
		if info.name == upper {
			return FuzzerKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFuzzer, name)
}

func (k FuzzerKind) valid() bool {
	return k >= 0 && int(k) < len(fuzzerTable)
}

func (k FuzzerKind) String() string {
	if !k.valid() {
		return fmt.Sprintf("FuzzerKind(%d)", int(k))
	}
	return fuzzerTable[k].name
}

func (k FuzzerKind) EntryPoint() string {
	if !k.valid() {
		return ""
	}
	return fuzzerTable[k].entryPoint
}

func (k FuzzerKind) Variant() BuildVariant {
	if !k.valid() {
		return ""
	}
	return fuzzerTable[k].variant
}

func (k FuzzerKind) GPUEligible() bool {
	return k.valid() && fuzzerTable[k].gpu
}

func (k FuzzerKind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFuzzer, int(k))
	}
	return []byte(k.String()), nil
}

func (k *FuzzerKind) UnmarshalText(text []byte) error {
	kind, err := ParseFuzzerKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}
