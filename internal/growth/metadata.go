package growth

// ModelStep describes one formula of the growth model for display.
type ModelStep struct {
	StepNumber  int    `json:"step_number"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Formula     string `json:"formula"`
}

// ModelMetadata contains information about the growth model
type ModelMetadata struct {
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	MaxYears       int                `json:"max_years"`
	RequiredFields []string           `json:"required_fields"`
	Constants      map[string]float64 `json:"constants"`
	Steps          []ModelStep        `json:"steps"`
}

// Describe returns the metadata of the Gompertz model.
func Describe() *ModelMetadata {
	return &ModelMetadata{
		Name:           ModelName,
		Description:    "Sigmoid growth of height and diameter with allometric biomass and CO2 conversion",
		MaxYears:       MaxYears,
		RequiredFields: append([]string(nil), CurveFields...),
		Constants: map[string]float64{
			"carbon_fraction": CarbonFraction,
			"co2_per_carbon":  CO2PerCarbon,
		},
		Steps: []ModelStep{
			{
				StepNumber:  1,
				Name:        "Height",
				Description: "Tree height after y years",
				Formula:     "H(y) = maxHeight × exp(-gB × exp(-gC × y))",
			},
			{
				StepNumber:  2,
				Name:        "Diameter",
				Description: "Diameter at breast height after y years",
				Formula:     "D(y) = avgDbh × exp(-gBDbh × exp(-gCDbh × y))",
			},
			{
				StepNumber:  3,
				Name:        "Above-ground biomass",
				Description: "Allometric power law on diameter",
				Formula:     "AGB(y) = allometricCoeffA × D(y)^allometricCoeffB",
			},
			{
				StepNumber:  4,
				Name:        "Below-ground biomass",
				Description: "Root-to-shoot ratio applied to AGB",
				Formula:     "BGB(y) = AGB(y) × rCoeff",
			},
			{
				StepNumber:  5,
				Name:        "CO2 equivalent",
				Description: "Carbon fraction of dry biomass converted to CO2",
				Formula:     "CO2eq(y) = (AGB(y) + BGB(y)) × 0.47 × 44/12",
			},
			{
				StepNumber:  6,
				Name:        "Yearly increment",
				Description: "Sequestration during year y; year 0 carries the initial stock",
				Formula:     "ΔCO2(y) = CO2eq(y) - CO2eq(y-1), ΔCO2(0) = CO2eq(0)",
			},
		},
	}
}
