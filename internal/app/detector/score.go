package detector

import (
	"fmt"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
)

type CheckLevel string

const (
	LevelStrict   CheckLevel = "strict"
	LevelModerate CheckLevel = "moderate"
	LevelLenient  CheckLevel = "lenient"
)

var severityWeights = map[CheckLevel]map[contract.Severity]int{
	LevelStrict:   {contract.SeverityMajor: 30, contract.SeverityMinor: 15, contract.SeverityPatch: 5},
	LevelModerate: {contract.SeverityMajor: 25, contract.SeverityMinor: 10, contract.SeverityPatch: 3},
	LevelLenient:  {contract.SeverityMajor: 20, contract.SeverityMinor: 8, contract.SeverityPatch: 2},
}

// Score starts at 100, subtracts the level's weight for every breaking change and one
// point per warning, and clamps to [0,100]. Unknown levels score as moderate.
func Score(breakingChanges, warnings []contract.Change, level CheckLevel) int {
	weights, ok := severityWeights[level]
	if !ok {
		weights = severityWeights[LevelModerate]
	}

	score := 100
	for _, c := range breakingChanges {
		score -= weights[c.Severity]
	}
	score -= len(warnings)

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type Complexity string

const (
	ComplexitySimple        Complexity = "simple"
	ComplexityModerate      Complexity = "moderate"
	ComplexityComplex       Complexity = "complex"
	ComplexityMajorRefactor Complexity = "major-refactor"
)

var impactWeights = map[contract.Severity]int{
	contract.SeverityMajor: 10,
	contract.SeverityMinor: 5,
	contract.SeverityPatch: 2,
}

var baseDays = map[Complexity]int{
	ComplexitySimple:        1,
	ComplexityModerate:      3,
	ComplexityComplex:       7,
	ComplexityMajorRefactor: 14,
}

// Impact is migration guidance for a comparison result. It is independent of the
// compatibility score.
type Impact struct {
	Score         int        `json:"score"`
	RiskLevel     RiskLevel  `json:"riskLevel"`
	Complexity    Complexity `json:"complexity"`
	EstimatedTime string     `json:"estimatedTime"`
	EstimatedDays int        `json:"estimatedDays"`
	MajorCount    int        `json:"majorCount"`
	MinorCount    int        `json:"minorCount"`
	PatchCount    int        `json:"patchCount"`
	WarningCount  int        `json:"warningCount"`
}

func AnalyzeImpact(result contract.CompatibilityResult) Impact {
	impact := Impact{WarningCount: len(result.Warnings)}

	score := 0
	for _, c := range result.BreakingChanges {
		score += impactWeights[c.Severity]
		switch c.Severity {
		case contract.SeverityMajor:
			impact.MajorCount++
		case contract.SeverityMinor:
			impact.MinorCount++
		case contract.SeverityPatch:
			impact.PatchCount++
		}
	}
	score += len(result.Warnings)
	impact.Score = clamp(score, 0, 100)

	total := len(result.BreakingChanges)
	hasMajor := impact.MajorCount > 0

	switch {
	case impact.Score >= 50 || (hasMajor && total >= 5):
		impact.RiskLevel = RiskCritical
	case impact.Score >= 25 || hasMajor:
		impact.RiskLevel = RiskHigh
	case impact.Score >= 10:
		impact.RiskLevel = RiskMedium
	default:
		impact.RiskLevel = RiskLow
	}

	switch {
	case impact.MajorCount >= 10 || total >= 20:
		impact.Complexity = ComplexityMajorRefactor
	case impact.MajorCount >= 5 || total >= 10:
		impact.Complexity = ComplexityComplex
	case impact.MajorCount >= 2 || total >= 5:
		impact.Complexity = ComplexityModerate
	default:
		impact.Complexity = ComplexitySimple
	}

	impact.EstimatedDays = baseDays[impact.Complexity] + (total+4)/5
	impact.EstimatedTime = formatDays(impact.EstimatedDays)
	return impact
}

func formatDays(days int) string {
	if days <= 7 {
		return plural(days, "day")
	}
	return plural((days+6)/7, "week")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
