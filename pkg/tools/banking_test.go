package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/agilbank/concierge/pkg/bank"
	"github.com/agilbank/concierge/pkg/exchange"
	"github.com/agilbank/concierge/pkg/ledger"
)

func newTestDeps(t *testing.T) (Deps, *ledger.Store) {
	t.Helper()

	dir := t.TempDir()
	seed := map[string]string{
		"customers.csv": "customer_id,name,birth_date,score,limit\n" +
			"12345678901,Joao Silva,15/03/1985,720,5000.00\n",
		"score_bands.csv": "score_min,score_max,max_limit\n" +
			"0,699,2500.00\n" +
			"700,799,10000.00\n" +
			"800,1000,20000.00\n",
		"increase_requests.csv": "customer_id,requested_at,limit_at_request,requested_limit,status\n",
	}
	for file, content := range seed {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
	}

	store, err := ledger.New(dir)
	require.NoError(t, err)

	return Deps{Store: store, Logger: zerolog.Nop()}, store
}

func newTestRegistry(t *testing.T, deps Deps) *Registry {
	t.Helper()
	reg, err := NewBankingRegistry(deps)
	require.NoError(t, err)
	return reg
}

func authenticatedContext() *bank.Context {
	return bank.NewContext(&bank.Context{
		Authenticated: true,
		CustomerID:    "12345678901",
		CustomerName:  "Joao Silva",
		CurrentScore:  720,
		CurrentLimit:  5000,
	})
}

func TestValidateCustomer_Success(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)
	bankCtx := bank.NewContext(nil)

	result, err := reg.Execute(context.Background(), "validate_customer", bankCtx, map[string]interface{}{
		"customer_id": "123.456.789-01",
		"birth_date":  "15/03/1985",
	})
	require.NoError(t, err)

	assert.Contains(t, result, "Customer authenticated successfully")
	assert.Contains(t, result, "Joao Silva")
	assert.Contains(t, result, "R$ 5000.00")
	assert.Contains(t, result, "720")

	assert.True(t, bankCtx.Authenticated)
	assert.Equal(t, "12345678901", bankCtx.CustomerID)
	assert.Equal(t, 720, bankCtx.CurrentScore)
	assert.Equal(t, 5000.00, bankCtx.CurrentLimit)
	assert.Equal(t, 1, bankCtx.AuthAttempts)
}

func TestValidateCustomer_WrongBirthDate(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)
	bankCtx := bank.NewContext(nil)

	result, err := reg.Execute(context.Background(), "validate_customer", bankCtx, map[string]interface{}{
		"customer_id": "12345678901",
		"birth_date":  "01/01/2000",
	})
	require.NoError(t, err)

	assert.Contains(t, result, "do not match")
	assert.Contains(t, result, "2 attempt(s) remaining")
	assert.False(t, bankCtx.Authenticated)
}

func TestValidateCustomer_WritesAuditTrail(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, observability.InitAuditLogger(auditPath))
	defer observability.GetAuditLogger().Close()

	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)
	bankCtx := bank.NewContext(nil)

	_, err := reg.Execute(context.Background(), "validate_customer", bankCtx, map[string]interface{}{
		"customer_id": "12345678901",
		"birth_date":  "01/01/2000",
	})
	require.NoError(t, err)

	_, err = reg.Execute(context.Background(), "validate_customer", bankCtx, map[string]interface{}{
		"customer_id": "123.456.789-01",
		"birth_date":  "15/03/1985",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"type":"auth"`)
	assert.Contains(t, out, `"status":"failure"`)
	assert.Contains(t, out, `"status":"success"`)
	assert.Contains(t, out, `"actor":"12345678901"`)
}

func TestValidateCustomer_AttemptsExhausted(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)
	bankCtx := bank.NewContext(nil)

	params := map[string]interface{}{
		"customer_id": "00000000000",
		"birth_date":  "01/01/2000",
	}

	for i := 0; i < 2; i++ {
		_, err := reg.Execute(context.Background(), "validate_customer", bankCtx, params)
		require.NoError(t, err)
	}

	result, err := reg.Execute(context.Background(), "validate_customer", bankCtx, params)
	require.NoError(t, err)
	assert.Contains(t, result, "maximum number of attempts (3)")

	// Further attempts never push the counter past the cap.
	result, err = reg.Execute(context.Background(), "validate_customer", bankCtx, params)
	require.NoError(t, err)
	assert.Contains(t, result, "maximum number of attempts (3)")
	assert.Equal(t, bank.MaxAuthAttempts, bankCtx.AuthAttempts)
}

func TestValidateCustomer_StorageErrorIsConversational(t *testing.T) {
	deps, store := newTestDeps(t)
	reg := newTestRegistry(t, deps)
	require.NoError(t, os.Remove(filepath.Join(store.Dir(), "customers.csv")))

	bankCtx := bank.NewContext(nil)
	result, err := reg.Execute(context.Background(), "validate_customer", bankCtx, map[string]interface{}{
		"customer_id": "12345678901",
		"birth_date":  "15/03/1985",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "Could not access the customer database")
}

func TestValidateCustomer_MissingParamsRejected(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)

	_, err := reg.Execute(context.Background(), "validate_customer", bank.NewContext(nil), map[string]interface{}{
		"customer_id": "12345678901",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid parameters")
}

func TestQueryCredit(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)

	result, err := reg.Execute(context.Background(), "query_credit", bank.NewContext(nil), nil)
	require.NoError(t, err)
	assert.Contains(t, result, "not authenticated")

	result, err = reg.Execute(context.Background(), "query_credit", authenticatedContext(), nil)
	require.NoError(t, err)
	assert.Contains(t, result, "Credit data for Joao Silva")
	assert.Contains(t, result, "R$ 5000.00")
	assert.Contains(t, result, "720 points")
}

func TestRequestCreditIncrease_Approved(t *testing.T) {
	deps, store := newTestDeps(t)
	reg := newTestRegistry(t, deps)
	bankCtx := authenticatedContext()

	result, err := reg.Execute(context.Background(), "request_credit_increase", bankCtx, map[string]interface{}{
		"new_limit": 10000.0,
	})
	require.NoError(t, err)

	assert.Contains(t, result, "Request APPROVED!")
	assert.Contains(t, result, "R$ 10000.00")
	assert.Equal(t, 10000.0, bankCtx.CurrentLimit)

	c, err := store.FindCustomer("12345678901")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, c.Limit)

	requests, err := store.ListIncreaseRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, ledger.StatusApproved, requests[0].Status)
	assert.Equal(t, 5000.0, requests[0].LimitAtRequest)
}

func TestRequestCreditIncrease_Rejected(t *testing.T) {
	deps, store := newTestDeps(t)
	reg := newTestRegistry(t, deps)
	bankCtx := authenticatedContext()

	result, err := reg.Execute(context.Background(), "request_credit_increase", bankCtx, map[string]interface{}{
		"new_limit": 50000.0,
	})
	require.NoError(t, err)

	assert.Contains(t, result, "Request REJECTED")
	assert.Contains(t, result, "720 points")
	assert.Contains(t, result, "R$ 10000.00")
	assert.Contains(t, result, "R$ 50000.00")
	assert.Contains(t, result, "credit interview")
	assert.Equal(t, 5000.0, bankCtx.CurrentLimit)

	c, err := store.FindCustomer("12345678901")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, c.Limit)

	requests, err := store.ListIncreaseRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, ledger.StatusRejected, requests[0].Status)
}

func TestRequestCreditIncrease_RequiresAuth(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)

	result, err := reg.Execute(context.Background(), "request_credit_increase", bank.NewContext(nil), map[string]interface{}{
		"new_limit": 100.0,
	})
	require.NoError(t, err)
	assert.Contains(t, result, "not authenticated")
}

func TestRequestCreditIncrease_NegativeLimitRejectedBySchema(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)

	_, err := reg.Execute(context.Background(), "request_credit_increase", authenticatedContext(), map[string]interface{}{
		"new_limit": -100.0,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid parameters")
}

func TestConductInterview_UpdatesScore(t *testing.T) {
	deps, store := newTestDeps(t)
	reg := newTestRegistry(t, deps)
	bankCtx := authenticatedContext()

	result, err := reg.Execute(context.Background(), "conduct_interview", bankCtx, map[string]interface{}{
		"monthly_income":  5000.0,
		"employment":      "formal",
		"fixed_expenses":  2000.0,
		"dependents":      1,
		"has_active_debt": false,
	})
	require.NoError(t, err)

	assert.Contains(t, result, "Credit interview completed successfully!")
	assert.Contains(t, result, "Previous score: 720")
	assert.Contains(t, result, "New score: 555")
	assert.Contains(t, result, "Credit Agent")

	assert.Equal(t, 555, bankCtx.CurrentScore)
	require.NotNil(t, bankCtx.Interview)
	assert.Equal(t, bank.EmploymentFormal, bankCtx.Interview.Employment)

	c, err := store.FindCustomer("12345678901")
	require.NoError(t, err)
	assert.Equal(t, 555, c.Score)
}

func TestConductInterview_InvalidEmploymentRejected(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)

	_, err := reg.Execute(context.Background(), "conduct_interview", authenticatedContext(), map[string]interface{}{
		"monthly_income":  5000.0,
		"employment":      "retired",
		"fixed_expenses":  2000.0,
		"dependents":      1,
		"has_active_debt": false,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid parameters")
}

func TestFetchExchangeRate_Success(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"USDBRL":{"name":"US Dollar/Brazilian Real","high":"5.30","low":"5.10","pctChange":"0.42","bid":"5.2000","ask":"5.2100","timestamp":"1756700000"}}`))
	}))
	t.Cleanup(primary.Close)

	deps, _ := newTestDeps(t)
	deps.Quotes = exchange.New(exchange.Config{PrimaryURL: primary.URL, Timeout: time.Second})
	reg := newTestRegistry(t, deps)

	result, err := reg.Execute(context.Background(), "fetch_exchange_rate", bank.NewContext(nil), map[string]interface{}{
		"currency": "usd",
	})
	require.NoError(t, err)

	assert.Contains(t, result, "Quote US Dollar/Brazilian Real")
	assert.Contains(t, result, "Buy (bid): R$ 5.2000")
	assert.Contains(t, result, "Sell (ask): R$ 5.2100")
	assert.Contains(t, result, "Day variation: 0.42%")
}

func TestFetchExchangeRate_UnsupportedCode(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	deps, _ := newTestDeps(t)
	deps.Quotes = exchange.New(exchange.Config{PrimaryURL: down.URL, SecondaryURL: down.URL, Timeout: time.Second})
	reg := newTestRegistry(t, deps)

	result, err := reg.Execute(context.Background(), "fetch_exchange_rate", bank.NewContext(nil), map[string]interface{}{
		"currency": "XYZ",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "Could not get a quote for XYZ")
	assert.Contains(t, result, "Supported currencies")
}

func TestFetchExchangeRate_ServiceDown(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	deps, _ := newTestDeps(t)
	deps.Quotes = exchange.New(exchange.Config{PrimaryURL: down.URL, SecondaryURL: down.URL, Timeout: time.Second})
	reg := newTestRegistry(t, deps)

	result, err := reg.Execute(context.Background(), "fetch_exchange_rate", bank.NewContext(nil), map[string]interface{}{
		"currency": "USD",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "temporarily unavailable")
}

func TestEndConversation(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)

	bankCtx := bank.NewContext(nil)
	result, err := reg.Execute(context.Background(), "end_conversation", bankCtx, nil)
	require.NoError(t, err)
	assert.True(t, bankCtx.ConversationEnded)
	assert.Contains(t, result, "Thank you for using Agil Bank services")
	assert.Contains(t, result, "[CONVERSATION ENDED]")

	bankCtx = bank.NewContext(nil)
	result, err = reg.Execute(context.Background(), "end_conversation", bankCtx, map[string]interface{}{
		"farewell_message": "Goodbye, Joao!",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "Goodbye, Joao!")
	assert.Contains(t, result, "[CONVERSATION ENDED]")
}

func TestRegistry_UnknownTool(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)

	_, err := reg.Execute(context.Background(), "transfer_funds", bank.NewContext(nil), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestRegistry_SchemasForAgent(t *testing.T) {
	deps, _ := newTestDeps(t)
	reg := newTestRegistry(t, deps)

	schemas := reg.Schemas([]string{"validate_customer", "end_conversation", "nope"})
	require.Len(t, schemas, 2)
	assert.Equal(t, "validate_customer", schemas[0].Name)
	assert.Equal(t, "object", schemas[0].InputSchema["type"])
}
