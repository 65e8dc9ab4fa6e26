// Package detector classifies the differences between two contract versions with an
// ordered registry of rules and scores the outcome.
package detector

import (
	"github.com/form3tech-oss/pact-compat/internal/app/compare"
	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/form3tech-oss/pact-compat/internal/app/metrics"
	"github.com/form3tech-oss/pact-compat/internal/app/semver"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Options struct {
	compare.Options `yaml:",inline"`
	CheckLevel      CheckLevel `json:"checkLevel" yaml:"checkLevel"`
	DisabledRules   []string   `json:"disabledRules,omitempty" yaml:"disabledRules"`
	// CustomRules run after the detector's own rules, for this call only.
	CustomRules []Rule `json:"-" yaml:"-"`
}

// Report is a compatibility result together with migration guidance.
type Report struct {
	contract.CompatibilityResult
	Impact      Impact      `json:"impact"`
	VersionBump semver.Bump `json:"versionBump"`
	// NextVersion is the provider version the bump leads to, when the old contract has one.
	NextVersion string `json:"nextVersion,omitempty"`
}

type Detector struct {
	rules   []Rule
	metrics *metrics.Metrics
}

// New returns a detector with the default rules followed by custom. m may be nil.
func New(m *metrics.Metrics, custom ...Rule) *Detector {
	return &Detector{
		rules:   append(DefaultRules(), custom...),
		metrics: m,
	}
}

// Rules returns the registered rules in evaluation order.
func (d *Detector) Rules() []Rule {
	return append([]Rule(nil), d.rules...)
}

// Register appends a rule to the registry.
func (d *Detector) Register(r Rule) {
	d.rules = append(d.rules, r)
}

// Detect compares the two contracts once and runs every enabled rule against the result.
// A failing rule is logged and skipped; only comparison errors are returned.
func (d *Detector) Detect(old, new *contract.Contract, opts Options) (*Report, error) {
	diffs, err := compare.Compare(old, new, opts.Options)
	if err != nil {
		return nil, errors.Wrap(err, "unable to compare contracts")
	}

	ctx := &Context{Differences: diffs, Options: opts}
	disabled := make(map[string]bool, len(opts.DisabledRules))
	for _, id := range opts.DisabledRules {
		disabled[id] = true
	}

	result := contract.CompatibilityResult{
		BreakingChanges: []contract.Change{},
		Warnings:        []contract.Change{},
	}
	for _, r := range append(d.Rules(), opts.CustomRules...) {
		if disabled[r.ID] {
			continue
		}

		changes, err := d.run(r, old, new, ctx)
		if err != nil {
			log.WithFields(log.Fields{"rule": r.ID}).Warnf("detection rule failed, skipping: %s", err)
			d.metrics.RuleFailed(r.ID)
			continue
		}

		for _, c := range changes {
			if c.Severity == "" {
				c.Severity = r.Severity
			}
			if c.Type == "" {
				c.Type = r.Category
			}
			d.metrics.ChangeDetected(string(c.Severity))

			if c.Severity.IsBreaking() {
				result.BreakingChanges = append(result.BreakingChanges, c)
			} else {
				result.Warnings = append(result.Warnings, c)
			}
		}
	}

	result.IsCompatible = len(result.BreakingChanges) == 0
	result.CompatibilityScore = Score(result.BreakingChanges, result.Warnings, opts.CheckLevel)

	report := &Report{
		CompatibilityResult: result,
		Impact:              AnalyzeImpact(result),
		VersionBump:         semver.DetermineVersionBump(result.BreakingChanges, result.Warnings),
	}
	if old.ProviderVersion != "" {
		if next, err := semver.GetNextVersion(old.ProviderVersion, report.VersionBump); err == nil {
			report.NextVersion = next
		}
	}

	log.WithFields(log.Fields{
		"provider":   new.ProviderName,
		"breaking":   len(result.BreakingChanges),
		"warnings":   len(result.Warnings),
		"score":      result.CompatibilityScore,
		"compatible": result.IsCompatible,
	}).Infof("detected %d differences", len(diffs))

	return report, nil
}

// run isolates a rule so a panic counts as that rule failing.
func (d *Detector) run(r Rule, old, new *contract.Contract, ctx *Context) (changes []contract.Change, err error) {
	defer func() {
		if p := recover(); p != nil {
			changes = nil
			err = errors.Errorf("panic: %v", p)
		}
	}()

	if r.Detect == nil {
		return nil, errors.Errorf("rule %s has no detect function", r.ID)
	}
	return r.Detect(old, new, ctx)
}
