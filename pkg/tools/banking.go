package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/agilbank/concierge/pkg/bank"
	"github.com/agilbank/concierge/pkg/exchange"
	"github.com/agilbank/concierge/pkg/ledger"
)

// Deps are the collaborators the banking tools operate on.
type Deps struct {
	Store  *ledger.Store
	Quotes *exchange.Fetcher
	Logger zerolog.Logger
}

// NewBankingRegistry builds the production tool registry.
func NewBankingRegistry(deps Deps) (*Registry, error) {
	reg := NewRegistry()

	defs := []Definition{
		validateCustomerTool(deps),
		queryCreditTool(deps),
		requestCreditIncreaseTool(deps),
		conductInterviewTool(deps),
		fetchExchangeRateTool(deps),
		endConversationTool(deps),
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return reg, nil
}

func validateCustomerTool(deps Deps) Definition {
	return Definition{
		Name:        "validate_customer",
		Description: "Validates the customer's id and birth date against the bank records for authentication. Returns whether the customer was authenticated and their data.",
		Parameters: []Parameter{
			{Name: "customer_id", Type: "string", Description: "Customer id, digits only or formatted with punctuation", Required: true},
			{Name: "birth_date", Type: "string", Description: "Customer birth date in DD/MM/YYYY format", Required: true},
		},
		Handler: func(_ context.Context, bankCtx *bank.Context, params map[string]interface{}) (string, error) {
			if bankCtx.AuthAttempts < bank.MaxAuthAttempts {
				bankCtx.AuthAttempts++
			}

			id := stringParam(params, "customer_id")
			birthDate := stringParam(params, "birth_date")

			customer, err := deps.Store.FindCustomer(id)
			if err != nil && !errors.Is(err, ledger.ErrCustomerNotFound) {
				deps.Logger.Error().Err(err).Msg("Customer lookup failed")
				return "Could not access the customer database. Please try again later.", nil
			}

			if err == nil && customer.BirthDate == birthDate {
				bankCtx.Authenticated = true
				bankCtx.CustomerID = customer.ID
				bankCtx.CustomerName = customer.Name
				bankCtx.CurrentScore = customer.Score
				bankCtx.CurrentLimit = customer.Limit

				observability.RecordAuthAudit(customer.ID, "success", map[string]interface{}{
					"attempt": bankCtx.AuthAttempts,
				})
				return fmt.Sprintf(
					"Customer authenticated successfully. Name: %s. Current credit limit: R$ %s. Credit score: %d.",
					customer.Name, formatAmount(customer.Limit), customer.Score,
				), nil
			}

			remaining := bank.MaxAuthAttempts - bankCtx.AuthAttempts
			observability.RecordAuthAudit(ledger.NormalizeCustomerID(id), "failure", map[string]interface{}{
				"attempt":   bankCtx.AuthAttempts,
				"remaining": remaining,
			})
			if remaining <= 0 {
				return "Authentication failed. The maximum number of attempts (3) has been reached. End the conversation politely, explaining that the customer could not be authenticated.", nil
			}
			return fmt.Sprintf("The details do not match our records. The customer has %d attempt(s) remaining.", remaining), nil
		},
	}
}

func queryCreditTool(_ Deps) Definition {
	return Definition{
		Name:        "query_credit",
		Description: "Queries the authenticated customer's current credit limit and score.",
		Handler: func(_ context.Context, bankCtx *bank.Context, _ map[string]interface{}) (string, error) {
			if !bankCtx.Authenticated {
				return "Error: customer not authenticated. Authentication is required before querying credit data.", nil
			}
			return fmt.Sprintf(
				"Credit data for %s:\n- Current credit limit: R$ %s\n- Credit score: %d points (0 to 1000 scale)",
				bankCtx.CustomerName, formatAmount(bankCtx.CurrentLimit), bankCtx.CurrentScore,
			), nil
		},
	}
}

func requestCreditIncreaseTool(deps Deps) Definition {
	minLimit := float64(0)
	return Definition{
		Name:        "request_credit_increase",
		Description: "Requests a credit limit increase. Records the request first, then checks whether the customer's current score allows the desired limit and updates the request status.",
		Parameters: []Parameter{
			{Name: "new_limit", Type: "number", Description: "New credit limit desired by the customer, in reais", Required: true, Minimum: &minLimit},
		},
		Handler: func(_ context.Context, bankCtx *bank.Context, params map[string]interface{}) (string, error) {
			if !bankCtx.Authenticated || bankCtx.CustomerID == "" {
				return "Error: customer not authenticated or customer data incomplete.", nil
			}

			newLimit := numberParam(params, "new_limit")

			err := deps.Store.AppendIncreaseRequest(ledger.IncreaseRequest{
				CustomerID:     bankCtx.CustomerID,
				RequestedAt:    time.Now(),
				LimitAtRequest: bankCtx.CurrentLimit,
				RequestedLimit: newLimit,
				Status:         ledger.StatusPending,
			})
			if err != nil {
				deps.Logger.Error().Err(err).Msg("Failed to record increase request")
				return "Could not process the limit increase request. Please try again.", nil
			}

			maxAllowed, err := deps.Store.MaxLimitForScore(bankCtx.CurrentScore)
			if err != nil {
				deps.Logger.Error().Err(err).Msg("Failed to read score bands")
				return "Could not process the limit increase request. Please try again.", nil
			}

			status := ledger.StatusRejected
			if newLimit <= maxAllowed {
				status = ledger.StatusApproved
			}
			if err := deps.Store.ResolvePendingRequest(bankCtx.CustomerID, status); err != nil {
				deps.Logger.Error().Err(err).Msg("Failed to resolve increase request")
				return "Could not process the limit increase request. Please try again.", nil
			}

			if status == ledger.StatusRejected {
				return fmt.Sprintf(
					"Request REJECTED. The customer's current score (%d points) allows a maximum limit of R$ %s, but R$ %s was requested. Inform the customer and offer a credit interview to try to improve the score.",
					bankCtx.CurrentScore, formatAmount(maxAllowed), formatAmount(newLimit),
				), nil
			}

			if err := deps.Store.UpdateCustomerLimit(bankCtx.CustomerID, newLimit); err != nil {
				deps.Logger.Error().Err(err).Msg("Failed to persist new limit")
				return "Could not process the limit increase request. Please try again.", nil
			}
			bankCtx.CurrentLimit = newLimit

			return fmt.Sprintf(
				"Request APPROVED! The customer's new credit limit is R$ %s. The limit has been updated in the system.",
				formatAmount(newLimit),
			), nil
		},
	}
}

func conductInterviewTool(deps Deps) Definition {
	minZero := float64(0)
	return Definition{
		Name:        "conduct_interview",
		Description: "Processes the answers collected in the credit interview, calculates the new score and updates the customer record.",
		Parameters: []Parameter{
			{Name: "monthly_income", Type: "number", Description: "Customer's monthly income in reais", Required: true, Minimum: &minZero},
			{Name: "employment", Type: "string", Description: "Employment situation: formal, self_employed or unemployed", Required: true,
				Enum: []interface{}{string(bank.EmploymentFormal), string(bank.EmploymentSelfEmployed), string(bank.EmploymentUnemployed)}},
			{Name: "fixed_expenses", Type: "number", Description: "Customer's total fixed monthly expenses in reais", Required: true, Minimum: &minZero},
			{Name: "dependents", Type: "integer", Description: "Number of dependents", Required: true, Minimum: &minZero},
			{Name: "has_active_debt", Type: "boolean", Description: "Whether the customer has active debt", Required: true},
		},
		Handler: func(_ context.Context, bankCtx *bank.Context, params map[string]interface{}) (string, error) {
			if !bankCtx.Authenticated || bankCtx.CustomerID == "" {
				return "Error: customer not authenticated.", nil
			}

			answers := bank.InterviewAnswers{
				MonthlyIncome: numberParam(params, "monthly_income"),
				Employment:    bank.Employment(stringParam(params, "employment")),
				FixedExpenses: numberParam(params, "fixed_expenses"),
				Dependents:    intParam(params, "dependents"),
				HasActiveDebt: boolParam(params, "has_active_debt"),
			}
			newScore := bank.ComputeScore(answers)
			bankCtx.Interview = &answers

			if err := deps.Store.UpdateCustomerScore(bankCtx.CustomerID, newScore); err != nil {
				deps.Logger.Error().Err(err).Msg("Failed to persist new score")
				return "Could not update the customer's score in the system. Please try again.", nil
			}

			previous := bankCtx.CurrentScore
			bankCtx.CurrentScore = newScore

			return fmt.Sprintf(
				"Credit interview completed successfully!\n- Previous score: %d points\n- New score: %d points\nThe score has been updated in the system. Transfer the customer to the Credit Agent for a new limit review.",
				previous, newScore,
			), nil
		},
	}
}

func fetchExchangeRateTool(deps Deps) Definition {
	return Definition{
		Name:        "fetch_exchange_rate",
		Description: "Fetches the current quote of a foreign currency against the Brazilian Real (BRL). Supported currencies: USD, EUR, GBP, ARS, CAD, AUD, JPY, CNY, BTC.",
		Parameters: []Parameter{
			{Name: "currency", Type: "string", Description: "Foreign currency code (e.g. USD, EUR, GBP, BTC)", Required: true},
		},
		Handler: func(ctx context.Context, _ *bank.Context, params map[string]interface{}) (string, error) {
			code := strings.ToUpper(strings.TrimSpace(stringParam(params, "currency")))

			quote, err := deps.Quotes.Fetch(ctx, code)
			if err != nil {
				if _, supported := exchange.CurrencyNames[code]; !supported {
					return fmt.Sprintf(
						"Could not get a quote for %s. Check that the currency code is correct. Supported currencies: USD, EUR, GBP, ARS, CAD, AUD, JPY, CNY, BTC.",
						code,
					), nil
				}
				return "The quote service is temporarily unavailable. Please try again later.", nil
			}

			return fmt.Sprintf(
				"Quote %s:\n- Buy (bid): R$ %.4f\n- Sell (ask): R$ %.4f\n- Day variation: %.2f%%\n- Day high: R$ %.4f\n- Day low: R$ %.4f\n- Last update: %s",
				quote.Name, quote.Bid, quote.Ask, quote.ChangePct, quote.High, quote.Low,
				quote.AsOf.Format("02/01/2006 15:04:05"),
			), nil
		},
	}
}

func endConversationTool(_ Deps) Definition {
	return Definition{
		Name:        "end_conversation",
		Description: "Ends the customer conversation definitively. Use when the customer asks to finish, or when the conversation cannot continue (e.g. three failed authentication attempts).",
		Parameters: []Parameter{
			{Name: "farewell_message", Type: "string", Description: "Optional personalized farewell message for the customer", Required: false},
		},
		Handler: func(_ context.Context, bankCtx *bank.Context, params map[string]interface{}) (string, error) {
			bankCtx.ConversationEnded = true

			message := stringParam(params, "farewell_message")
			if message == "" {
				message = "Thank you for using Agil Bank services. Have a great day!"
			}
			return message + "\n\n[CONVERSATION ENDED]", nil
		},
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func numberParam(params map[string]interface{}, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intParam(params map[string]interface{}, key string) int {
	return int(numberParam(params, key))
}

func boolParam(params map[string]interface{}, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}
