package bank

import "math"

// Employment classifies the customer's employment situation for scoring.
type Employment string

const (
	EmploymentFormal       Employment = "formal"
	EmploymentSelfEmployed Employment = "self_employed"
	EmploymentUnemployed   Employment = "unemployed"
)

// InterviewAnswers holds the answers collected during a credit interview.
type InterviewAnswers struct {
	MonthlyIncome float64    `json:"monthlyIncome"`
	Employment    Employment `json:"employment"`
	FixedExpenses float64    `json:"fixedExpenses"`
	Dependents    int        `json:"dependents"`
	HasActiveDebt bool       `json:"hasActiveDebt"`
}

var employmentWeights = map[Employment]float64{
	EmploymentFormal:       300,
	EmploymentSelfEmployed: 200,
	EmploymentUnemployed:   0,
}

func dependentsWeight(n int) float64 {
	switch {
	case n <= 0:
		return 100
	case n == 1:
		return 80
	case n == 2:
		return 60
	default:
		return 30
	}
}

func debtWeight(hasDebt bool) float64 {
	if hasDebt {
		return -100
	}
	return 100
}

// ComputeScore maps interview answers to a credit score in [0, 1000].
//
//	score = clamp(0, 1000, round(30*income/(expenses+1) + employment + dependents + debt))
func ComputeScore(a InterviewAnswers) int {
	incomeRatio := 30 * a.MonthlyIncome / (a.FixedExpenses + 1)
	total := incomeRatio + employmentWeights[a.Employment] + dependentsWeight(a.Dependents) + debtWeight(a.HasActiveDebt)

	score := int(math.Round(total))
	if score < 0 {
		return 0
	}
	if score > 1000 {
		return 1000
	}
	return score
}
