package sensor

import (
	"fmt"
	"math"
	"strings"
)

// codes per full scale of the 10-bit converter
const fullScale = 1024

const maxCode = fullScale - 1

type Vdd int

const (
	Vdd3V3 Vdd = iota + 1
	Vdd5V
)

func (v Vdd) Volts() float64 {
	switch v {
	case Vdd3V3:
		return 3.3
	case Vdd5V:
		return 5.0
	}
	return 0
}

func (v Vdd) String() string {
	switch v {
	case Vdd3V3:
		return "3v3"
	case Vdd5V:
		return "5v"
	}
	return fmt.Sprintf("Vdd(%d)", int(v))
}

// ParseVdd accepts "3v3", "3.3", "5v" and "5" in any case.
func ParseVdd(s string) (Vdd, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "3v3", "3.3", "3.3v", "positive3v3":
		return Vdd3V3, nil
	case "5v", "5", "5.0", "positive5v":
		return Vdd5V, nil
	}
	return 0, &ConfigurationError{Field: "vdd", Reason: "unknown supply voltage, want 3v3 or 5v", Value: s}
}

// Reference is the voltage the converter scales its codes against: either the
// nominal supply or an explicit reference pin voltage.
type Reference struct {
	vdd  Vdd
	vref float64
}

// NewReference builds a Reference. Exactly one of vdd (non-empty) or vref
// (non-nil) may be given; with neither the 3.3V supply is assumed.
func NewReference(vdd string, vref *float64) (Reference, error) {
	if vdd != "" && vref != nil {
		return Reference{}, &ConfigurationError{Field: "vref", Reason: "vdd and vref are mutually exclusive"}
	}
	if vref != nil {
		v := *vref
		if math.IsNaN(v) || v <= 0 || v > Vdd5V.Volts()+0.5 {
			return Reference{}, &ConfigurationError{Field: "vref", Reason: "reference voltage must be in (0, 5.5] volts", Value: v}
		}
		return Reference{vref: v}, nil
	}
	if vdd == "" {
		return Reference{vdd: Vdd3V3}, nil
	}
	d, err := ParseVdd(vdd)
	if err != nil {
		return Reference{}, err
	}
	return Reference{vdd: d}, nil
}

func (r Reference) Volts() float64 {
	if r.vref > 0 {
		return r.vref
	}
	return r.vdd.Volts()
}

func (r Reference) String() string {
	if r.vref > 0 {
		return fmt.Sprintf("vref=%.3fV", r.vref)
	}
	return fmt.Sprintf("vdd=%s", r.vdd)
}

// ToVolts converts a raw code to volts.
func (r Reference) ToVolts(code uint16) float64 {
	return float64(code) * r.Volts() / fullScale
}

// ToCode is the inverse of ToVolts, clamped to the converter range.
func (r Reference) ToCode(v float64) uint16 {
	c := math.Round(v * fullScale / r.Volts())
	switch {
	case c < 0 || math.IsNaN(c):
		return 0
	case c > maxCode:
		return maxCode
	}
	return uint16(c)
}
