// Package suitability scores weather against event-type profiles.
package suitability

import (
	"sort"

	"github.com/kjstillabower/event-weather-service/internal/models"
)

// Event types with a scoring profile. Any other tag scores 0.
const (
	OutdoorSports = "Outdoor Sports"
	FormalEvents  = "Wedding/Formal Events"
)

// Label thresholds.
const (
	GoodThreshold = 80
	OkayThreshold = 50
)

// Profile is a set of independent pass/fail checks; each passing check adds its weight.
// Weights sum to 100.
type Profile struct {
	MinTemp, MaxTemp float64 // inclusive, °C
	MaxPrecip        float64 // exclusive, mm
	MaxWind          float64 // exclusive, m/s

	TempWeight      int
	PrecipWeight    int
	WindWeight      int
	ConditionWeight int
}

// Wind limits are given in km/h and compared in m/s.
var profiles = map[string]Profile{
	OutdoorSports: {
		MinTemp: 15, MaxTemp: 30, MaxPrecip: 20, MaxWind: 20 / 3.6,
		TempWeight: 30, PrecipWeight: 25, WindWeight: 20, ConditionWeight: 25,
	},
	FormalEvents: {
		MinTemp: 18, MaxTemp: 28, MaxPrecip: 10, MaxWind: 15 / 3.6,
		TempWeight: 30, PrecipWeight: 30, WindWeight: 25, ConditionWeight: 15,
	},
}

var favourableConditions = map[string]bool{"Clear": true, "Clouds": true}

// ProfileFor returns the profile for eventType.
func ProfileFor(eventType string) (Profile, bool) {
	p, ok := profiles[eventType]
	return p, ok
}

// EventTypes lists the known event types, sorted.
func EventTypes() []string {
	out := make([]string, 0, len(profiles))
	for k := range profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Known reports whether eventType has a profile.
func Known(eventType string) bool {
	_, ok := profiles[eventType]
	return ok
}

// MetricLabel returns eventType when it has a profile and "unknown" otherwise, keeping
// metric label cardinality bounded.
func MetricLabel(eventType string) string {
	if Known(eventType) {
		return eventType
	}
	return "unknown"
}

// Score rates summary for eventType. A nil summary is (Poor, 0); an unknown event
// type passes no checks.
func Score(eventType string, summary *models.WeatherSummary) models.SuitabilityResult {
	if summary == nil {
		return models.SuitabilityResult{Label: models.LabelPoor, Score: 0}
	}
	p, ok := profiles[eventType]
	if !ok {
		return models.SuitabilityResult{Label: models.LabelPoor, Score: 0}
	}

	score := 0
	if summary.Temperature >= p.MinTemp && summary.Temperature <= p.MaxTemp {
		score += p.TempWeight
	}
	if summary.Precipitation < p.MaxPrecip {
		score += p.PrecipWeight
	}
	if summary.WindSpeed < p.MaxWind {
		score += p.WindWeight
	}
	if favourableConditions[summary.MainCategory] {
		score += p.ConditionWeight
	}
	return models.SuitabilityResult{Label: LabelFor(score), Score: score}
}

// LabelFor maps a score to its label.
func LabelFor(score int) models.Label {
	switch {
	case score >= GoodThreshold:
		return models.LabelGood
	case score >= OkayThreshold:
		return models.LabelOkay
	}
	return models.LabelPoor
}
