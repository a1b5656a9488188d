package ml

import (
	"strconv"
	"strings"
)

// Definition parameterizes the shared pipeline for one model pair.
type Definition struct {
	Name       string
	Route      string
	Schema     *IndexSchema
	Confidence ConfidenceMode
	// Respond maps a prediction to the JSON payload returned to clients.
	Respond func(Prediction) any
}

// ExoplanetResponse is the payload of the exoplanet pipeline.
type ExoplanetResponse struct {
	Prediction string  `json:"prediction"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// HabitabilityResponse is the payload of the habitability pipeline.
type HabitabilityResponse struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

const (
	StatusHabitable    = "habitable"
	StatusNotHabitable = "not habitable"
)

// Exoplanet classifies a 19-feature candidate into its disposition class.
// Positions 4-7 are binary false-positive flags.
var Exoplanet = Definition{
	Name:  "exoplanet",
	Route: "/predict",
	Schema: MustIndexSchema(19,
		[]int{0, 1, 2, 3, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18},
		[]int{4, 5, 6, 7},
	),
	Confidence: ConfidenceByClassOrder,
	Respond: func(p Prediction) any {
		return ExoplanetResponse{
			Prediction: p.Class,
			Label:      strings.ToLower(p.Class),
			Confidence: p.Confidence,
		}
	},
}

// Habitability classifies a 15-feature planet as habitable (1) or not (0).
var Habitability = Definition{
	Name:  "habitability",
	Route: "/habitability-predict",
	Schema: MustIndexSchema(15,
		[]int{1, 2, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14},
		[]int{0, 3},
	),
	Confidence: ConfidenceByClassIndex,
	Respond: func(p Prediction) any {
		status := StatusNotHabitable
		if isPositiveClass(p.Class) {
			status = StatusHabitable
		}
		return HabitabilityResponse{Status: status, Confidence: p.Confidence}
	},
}

// Definitions lists every built-in pipeline.
func Definitions() []Definition {
	return []Definition{Exoplanet, Habitability}
}

func isPositiveClass(label string) bool {
	v, err := strconv.ParseFloat(label, 64)
	return err == nil && v == 1
}
