package main

import (
	"github.com/pthm-cable/bettina/species"
)

// ParamSpec defines a single calibrated species constant.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Species table key for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of calibrated constants.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the calibrated parameter set with defaults taken
// from table.
func NewParamVector(table species.Table) *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "half_max_height_growth_weight", Path: "half_max_height_growth_weight", Min: 0.01, Max: 1.0, Default: table.HalfMaxHeightGrowthWeight},
			{Name: "maintenance_factor", Path: "maintenance_factor", Min: 0.01, Max: 2.0, Default: table.MaintenanceFactor},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToTable returns a copy of table with the clamped values applied.
// Order must match Specs order.
func (pv *ParamVector) ApplyToTable(table species.Table, values []float64) species.Table {
	clamped := pv.Clamp(values)
	table.HalfMaxHeightGrowthWeight = clamped[0]
	table.MaintenanceFactor = clamped[1]
	return table
}

// ExtractFromTable extracts current parameter values from a species table.
func (pv *ParamVector) ExtractFromTable(table species.Table) []float64 {
	return []float64{
		table.HalfMaxHeightGrowthWeight,
		table.MaintenanceFactor,
	}
}
