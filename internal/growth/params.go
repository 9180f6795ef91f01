package growth

// Parameters holds the species coefficients of the Gompertz growth model.
// Every field is nullable; a nil field means the coefficient was never
// recorded for the species and must not be replaced by a default.
type Parameters struct {
	MaxHeight        *float64 `gorm:"column:max_height" json:"maxHeight"`
	AvgDbh           *float64 `gorm:"column:avg_dbh" json:"avgDbh"`
	GB               *float64 `gorm:"column:g_b" json:"gB"`
	GC               *float64 `gorm:"column:g_c" json:"gC"`
	GBDbh            *float64 `gorm:"column:g_b_dbh" json:"gBDbh"`
	GCDbh            *float64 `gorm:"column:g_c_dbh" json:"gCDbh"`
	AllometricCoeffA *float64 `gorm:"column:allometric_coeff_a" json:"allometricCoeffA"`
	AllometricCoeffB *float64 `gorm:"column:allometric_coeff_b" json:"allometricCoeffB"`
	RCoeff           *float64 `gorm:"column:r_coeff" json:"rCoeff"`
}

// Coefficients is the fully resolved form of Parameters.
type Coefficients struct {
	MaxHeight        float64 `json:"maxHeight"`
	AvgDbh           float64 `json:"avgDbh"`
	GB               float64 `json:"gB"`
	GC               float64 `json:"gC"`
	GBDbh            float64 `json:"gBDbh"`
	GCDbh            float64 `json:"gCDbh"`
	AllometricCoeffA float64 `json:"allometricCoeffA"`
	AllometricCoeffB float64 `json:"allometricCoeffB"`
	RCoeff           float64 `json:"rCoeff"`
}

// Field names as exposed to callers.
const (
	FieldMaxHeight        = "maxHeight"
	FieldAvgDbh           = "avgDbh"
	FieldGB               = "gB"
	FieldGC               = "gC"
	FieldGBDbh            = "gBDbh"
	FieldGCDbh            = "gCDbh"
	FieldAllometricCoeffA = "allometricCoeffA"
	FieldAllometricCoeffB = "allometricCoeffB"
	FieldRCoeff           = "rCoeff"
)

// CurveFields are the coefficients needed to generate a growth curve.
var CurveFields = []string{
	FieldMaxHeight, FieldAvgDbh,
	FieldGB, FieldGC, FieldGBDbh, FieldGCDbh,
	FieldAllometricCoeffA, FieldAllometricCoeffB, FieldRCoeff,
}

// SnapshotFields are the coefficients needed for a current-state biomass estimate.
var SnapshotFields = []string{
	FieldAvgDbh, FieldAllometricCoeffA, FieldAllometricCoeffB, FieldRCoeff,
}

func (p Parameters) lookup(name string) *float64 {
	switch name {
	case FieldMaxHeight:
		return p.MaxHeight
	case FieldAvgDbh:
		return p.AvgDbh
	case FieldGB:
		return p.GB
	case FieldGC:
		return p.GC
	case FieldGBDbh:
		return p.GBDbh
	case FieldGCDbh:
		return p.GCDbh
	case FieldAllometricCoeffA:
		return p.AllometricCoeffA
	case FieldAllometricCoeffB:
		return p.AllometricCoeffB
	case FieldRCoeff:
		return p.RCoeff
	}
	return nil
}

// MissingFields returns the names among fields whose value is nil, in the
// order given.
func (p Parameters) MissingFields(fields ...string) []string {
	var missing []string
	for _, name := range fields {
		if p.lookup(name) == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// Require fails with a *MissingParametersError when any of fields is nil.
func (p Parameters) Require(fields ...string) error {
	if missing := p.MissingFields(fields...); len(missing) > 0 {
		return &MissingParametersError{Fields: missing}
	}
	return nil
}

// Resolve returns the coefficients of p. All curve fields must be present.
func (p Parameters) Resolve() (Coefficients, error) {
	if err := p.Require(CurveFields...); err != nil {
		return Coefficients{}, err
	}
	return Coefficients{
		MaxHeight:        *p.MaxHeight,
		AvgDbh:           *p.AvgDbh,
		GB:               *p.GB,
		GC:               *p.GC,
		GBDbh:            *p.GBDbh,
		GCDbh:            *p.GCDbh,
		AllometricCoeffA: *p.AllometricCoeffA,
		AllometricCoeffB: *p.AllometricCoeffB,
		RCoeff:           *p.RCoeff,
	}, nil
}
