package classify

import (
	"fmt"

	"ultraseeker/internal/config"
	"ultraseeker/internal/model"
)

// Classifier maps (category, confidence) to a severity tier. It is pure:
// no state beyond the category sets built from configuration.
type Classifier struct {
	weaponClasses     map[model.ThreatCategory]struct{}
	aggressiveClasses map[model.ThreatCategory]struct{}
	groupClasses      map[model.ThreatCategory]struct{}
	defaultThreshold  float64
	thresholds        map[model.ThreatCategory]float64
}

func New(cfg config.ClassifierConfig) *Classifier {
	c := &Classifier{
		weaponClasses:     buildCategorySet(cfg.WeaponClasses),
		aggressiveClasses: buildCategorySet(cfg.AggressiveClasses),
		groupClasses:      buildCategorySet(cfg.GroupClasses),
		defaultThreshold:  cfg.DefaultThreshold,
		thresholds:        make(map[model.ThreatCategory]float64, len(cfg.CategoryThresholds)),
	}
	if c.defaultThreshold <= 0 {
		c.defaultThreshold = 0.7
	}
	for category, threshold := range cfg.CategoryThresholds {
		c.thresholds[model.ThreatCategory(category)] = threshold
	}
	return c
}

func buildCategorySet(values []string) map[model.ThreatCategory]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[model.ThreatCategory]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[model.ThreatCategory(v)] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func contains(set map[model.ThreatCategory]struct{}, category model.ThreatCategory) bool {
	if set == nil {
		return false
	}
	_, ok := set[category]
	return ok
}

// Classify applies the severity rule table, first match wins.
func (c *Classifier) Classify(category model.ThreatCategory, confidence float64) model.Severity {
	weapon := contains(c.weaponClasses, category)
	switch {
	case weapon && confidence > 0.9:
		return model.SeverityOmega
	case weapon && confidence > 0.8:
		return model.SeverityRed
	case (contains(c.aggressiveClasses, category) || contains(c.groupClasses, category)) && confidence > 0.8:
		return model.SeverityOrange
	case confidence > 0.75:
		return model.SeverityYellow
	default:
		return model.SeverityGreen
	}
}

// Threshold is the acceptance confidence a candidate must exceed before it
// is classified at all. Sub-threshold candidates never reach the ledger.
func (c *Classifier) Threshold(category model.ThreatCategory) float64 {
	if t, ok := c.thresholds[category]; ok {
		return t
	}
	return c.defaultThreshold
}

var descriptions = map[model.ThreatCategory]string{
	model.CategoryWeaponFirearm:     "Firearm detected with %.1f%% confidence - IMMEDIATE THREAT",
	model.CategoryWeaponKnife:       "Edged weapon detected with %.1f%% confidence - HIGH THREAT",
	model.CategoryAggressiveGesture: "Aggressive behavior observed with %.1f%% confidence",
	model.CategoryRunningEscape:     "Rapid movement/escape behavior detected with %.1f%% confidence",
	model.CategoryGroupFormation:    "Coordinated group threat with %.1f%% confidence",
	model.CategorySuspiciousObject:  "Suspicious object identified with %.1f%% confidence",
	model.CategoryFireSmoke:         "Fire or smoke detected with %.1f%% confidence - EVACUATION NEEDED",
	model.CategoryBrokenGlass:       "Structural damage detected with %.1f%% confidence",
	model.CategoryBlood:             "Blood/injury detected with %.1f%% confidence - MEDICAL RESPONSE NEEDED",
	model.CategoryErraticMovement:   "Erratic movement pattern detected - monitoring for escalation",
	model.CategoryAggressiveSpeech:  "Aggressive speech patterns detected - elevated threat level",
}

// Describe renders the human-readable text for a classified detection.
func Describe(category model.ThreatCategory, confidence float64) string {
	format, ok := descriptions[category]
	if !ok {
		return fmt.Sprintf("Unknown threat: %s", category)
	}
	if !hasFormatVerb(format) {
		return format
	}
	return fmt.Sprintf(format, confidence*100)
}

func hasFormatVerb(format string) bool {
	for i := 0; i+1 < len(format); i++ {
		if format[i] == '%' && format[i+1] != '%' {
			return true
		}
	}
	return false
}
