package controller

import (
	"fmt"
	"strings"

	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
	"github.com/nerrad567/fieldsim/internal/resource"
)

// Rule is a two-threshold measurement rule.
type Rule struct {
	Name            string
	MeasurementType string
	High            float64
	Low             float64
	Directive       string
	HighValue       string
	LowValue        string
	Selector        Selector
}

// Evaluate returns the command m triggers, if any.
func (r Rule) Evaluate(m resource.Measurement) (resource.Command, bool) {
	if m.Type != r.MeasurementType {
		return resource.Command{}, false
	}
	switch {
	case m.Value > r.High:
		return resource.NewCommand(r.Directive, r.HighValue), true
	case m.Value < r.Low:
		return resource.NewCommand(r.Directive, r.LowValue), true
	default:
		return resource.Command{}, false
	}
}

// Validate checks the rule is usable.
func (r Rule) Validate() error {
	switch {
	case strings.TrimSpace(r.MeasurementType) == "":
		return fmt.Errorf("rule %q: measurement type is required", r.Name)
	case strings.TrimSpace(r.Directive) == "":
		return fmt.Errorf("rule %q: directive is required", r.Name)
	case r.Low > r.High:
		return fmt.Errorf("rule %q: low %v is above high %v", r.Name, r.Low, r.High)
	case r.Selector == nil:
		return fmt.Errorf("rule %q: selector is required", r.Name)
	}
	return nil
}

// DefaultRule is the fan rule: ON above 30, OFF below 18, applied to
// actuators with the "fan" capability.
func DefaultRule() Rule {
	r, _ := RuleFromConfig(config.SelectorCapability, config.DefaultRule())
	return r
}

// RuleFromConfig builds a rule using the named selector kind.
func RuleFromConfig(selector string, c config.RuleConfig) (Rule, error) {
	sel, err := NewSelector(selector, c)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{
		Name:            c.Name,
		MeasurementType: c.MeasurementType,
		High:            c.High,
		Low:             c.Low,
		Directive:       c.Directive,
		HighValue:       c.HighValue,
		LowValue:        c.LowValue,
		Selector:        sel,
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// RulesFromConfig builds every configured rule. An empty list yields the
// default rule.
func RulesFromConfig(selector string, cfgs []config.RuleConfig) ([]Rule, error) {
	if len(cfgs) == 0 {
		cfgs = []config.RuleConfig{config.DefaultRule()}
	}
	rules := make([]Rule, 0, len(cfgs))
	for _, c := range cfgs {
		r, err := RuleFromConfig(selector, c)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
