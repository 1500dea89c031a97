package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeScore_KnownValues(t *testing.T) {
	// 30*5000/(2000+1) = 74.96..., +300 formal, +80 one dependent, +100 no debt.
	score := ComputeScore(InterviewAnswers{
		MonthlyIncome: 5000,
		Employment:    EmploymentFormal,
		FixedExpenses: 2000,
		Dependents:    1,
		HasActiveDebt: false,
	})
	assert.Equal(t, 555, score)

	// 30*3000/(1500+1) = 59.96..., +200 self employed, +60 two dependents, -100 debt.
	score = ComputeScore(InterviewAnswers{
		MonthlyIncome: 3000,
		Employment:    EmploymentSelfEmployed,
		FixedExpenses: 1500,
		Dependents:    2,
		HasActiveDebt: true,
	})
	assert.Equal(t, 220, score)
}

func TestComputeScore_ZeroExpensesDenominator(t *testing.T) {
	// Expenses of zero must not divide by zero; the denominator is expenses+1.
	score := ComputeScore(InterviewAnswers{
		MonthlyIncome: 10,
		Employment:    EmploymentUnemployed,
		FixedExpenses: 0,
		Dependents:    0,
		HasActiveDebt: false,
	})
	// 30*10/1 = 300, +0, +100, +100.
	assert.Equal(t, 500, score)
}

func TestComputeScore_ClampsToRange(t *testing.T) {
	high := ComputeScore(InterviewAnswers{
		MonthlyIncome: 1000000,
		Employment:    EmploymentFormal,
		FixedExpenses: 0,
		Dependents:    0,
		HasActiveDebt: false,
	})
	assert.Equal(t, 1000, high)

	low := ComputeScore(InterviewAnswers{
		MonthlyIncome: 0,
		Employment:    EmploymentUnemployed,
		FixedExpenses: 5000,
		Dependents:    4,
		HasActiveDebt: true,
	})
	assert.Equal(t, 0, low)
}

func TestComputeScore_MonotonicInIncome(t *testing.T) {
	base := InterviewAnswers{
		Employment:    EmploymentFormal,
		FixedExpenses: 1000,
		Dependents:    1,
		HasActiveDebt: true,
	}

	prev := -1
	for _, income := range []float64{0, 500, 2000, 8000, 20000} {
		a := base
		a.MonthlyIncome = income
		score := ComputeScore(a)
		assert.GreaterOrEqual(t, score, prev, "income %v", income)
		prev = score
	}
}

func TestComputeScore_UnknownEmploymentWeighsZero(t *testing.T) {
	known := ComputeScore(InterviewAnswers{
		MonthlyIncome: 2000,
		Employment:    EmploymentUnemployed,
		FixedExpenses: 500,
		Dependents:    0,
	})
	unknown := ComputeScore(InterviewAnswers{
		MonthlyIncome: 2000,
		Employment:    Employment("intern"),
		FixedExpenses: 500,
		Dependents:    0,
	})
	assert.Equal(t, known, unknown)
}

func TestNewContext_Overrides(t *testing.T) {
	ctx := NewContext(nil)
	assert.False(t, ctx.Authenticated)
	assert.Equal(t, 0, ctx.AuthAttempts)

	demo := NewContext(DemoIdentity())
	assert.True(t, demo.Authenticated)
	assert.Equal(t, "12345678901", demo.CustomerID)
	assert.Equal(t, 720, demo.CurrentScore)
	assert.Equal(t, float64(5000), demo.CurrentLimit)

	// The override is copied, not aliased.
	demo.CurrentScore = 1
	assert.Equal(t, 720, DemoIdentity().CurrentScore)
}

func TestSnapshot_OmitsInterview(t *testing.T) {
	ctx := NewContext(DemoIdentity())
	ctx.Interview = &InterviewAnswers{MonthlyIncome: 100}
	snap := ctx.Snapshot()
	assert.Equal(t, ctx.CustomerID, snap.CustomerID)
	assert.Equal(t, ctx.CurrentLimit, snap.CurrentLimit)
	assert.False(t, snap.ConversationEnded)
}
