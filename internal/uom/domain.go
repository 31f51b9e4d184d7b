package uom

import "strings"

// Dimension is the physical quantity a unit measures.
type Dimension string

const (
	DimensionMass   Dimension = "mass"
	DimensionVolume Dimension = "volume"
	DimensionCount  Dimension = "count"
	DimensionLength Dimension = "length"
)

// Valid reports whether d is a supported dimension.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionMass, DimensionVolume, DimensionCount, DimensionLength:
		return true
	}
	return false
}

// Unit is a unit of measure identified by an upper-case code.
type Unit struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Dimension Dimension `json:"dimension"`
}

// Conversion is a directed edge: 1 From equals Factor To.
type Conversion struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Factor float64 `json:"factor"`
}

// Snapshot is the serialisable content of the registry.
type Snapshot struct {
	Units       []Unit       `json:"units"`
	Conversions []Conversion `json:"conversions"`
}

// UnitUpdate carries mutable unit fields.
type UnitUpdate struct {
	Name      string
	Dimension Dimension
}

// Error codes returned by the resolver and the registry.
const (
	CodeBaseUOMNotFound        = "BASE_UOM_NOT_FOUND"
	CodeReceivedUOMNotFound    = "RECEIVED_UOM_NOT_FOUND"
	CodeDimensionMismatch      = "UOM_DIMENSION_MISMATCH"
	CodeConversionNotFound     = "UOM_CONVERSION_NOT_FOUND"
	CodeUnitNotFound           = "UOM_NOT_FOUND"
	CodeUnitExists             = "UOM_ALREADY_EXISTS"
	CodeInvalidCode            = "INVALID_UOM_CODE"
	CodeInvalidDimension       = "INVALID_DIMENSION"
	CodeDimensionLocked        = "UOM_DIMENSION_LOCKED"
	CodeInvalidConversion      = "INVALID_CONVERSION"
	CodeInvalidFactor          = "INVALID_FACTOR"
	CodeConversionExists       = "UOM_CONVERSION_EXISTS"
	CodeConversionInconsistent = "UOM_CONVERSION_INCONSISTENT"
)

// NormalizeCode trims and upper-cases a unit code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
