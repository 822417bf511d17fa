package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/dvloznov/costpilot/internal/domain"
)

// fakeGenerator replays canned responses in order.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	lastModel string
	lastCfg   *genai.GenerateContentConfig
	lastParts []*genai.Part
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	f.lastModel = model
	f.lastCfg = cfg
	if len(contents) > 0 {
		f.lastParts = contents[0].Parts
	}

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := ""
	if i < len(f.responses) {
		text = f.responses[i]
	}
	return textResponse(text), nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func newTestClient(gen Generator, retries int) *GeminiClient {
	return NewWithGenerator(gen, Options{
		ExtractionModel:      "extract-model",
		AnalysisModel:        "analysis-model",
		ExtractionRetries:    retries,
		AnalysisRetries:      retries,
		RetryInitialInterval: time.Millisecond,
	}, zerolog.Nop())
}

func TestExtractExpense_Success(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"```json\n{\"vendorName\":\"Acme\",\"amount\":42.5,\"currency\":\"USD\",\"date\":\"2024-03-01\",\"category\":\"Software\"}\n```",
	}}
	c := newTestClient(gen, 0)

	got, err := c.ExtractExpense(context.Background(), []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)

	require.NotNil(t, got.VendorName)
	assert.Equal(t, "Acme", *got.VendorName)
	require.NotNil(t, got.Amount)
	assert.True(t, decimal.RequireFromString("42.5").Equal(*got.Amount))
	assert.Equal(t, "USD", *got.Currency)
	assert.Equal(t, "2024-03-01", *got.Date)
	assert.Equal(t, "Software", *got.Category)

	assert.Equal(t, "extract-model", gen.lastModel)
	assert.Equal(t, "application/json", gen.lastCfg.ResponseMIMEType)
	require.Len(t, gen.lastParts, 2)
	require.NotNil(t, gen.lastParts[0].InlineData)
	assert.Equal(t, "application/pdf", gen.lastParts[0].InlineData.MIMEType)
}

func TestExtractExpense_MissingFieldsAreNil(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"vendorName": "  ", "amount": null}`}}
	c := newTestClient(gen, 0)

	got, err := c.ExtractExpense(context.Background(), []byte("x"), "image/png")
	require.NoError(t, err)
	assert.Nil(t, got.VendorName)
	assert.Nil(t, got.Amount)
	assert.Nil(t, got.Currency)
	assert.Nil(t, got.Date)
	assert.Nil(t, got.Category)
}

func TestExtractExpense_UnparseableIsNotRetried(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I could not read this invoice", "{}"}}
	c := newTestClient(gen, 3)

	_, err := c.ExtractExpense(context.Background(), []byte("x"), "application/pdf")
	require.Error(t, err)

	var extErr *ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "application/pdf", extErr.MediaType)
	assert.Equal(t, 1, gen.calls)
}

func TestExtractExpense_RetriesTransientErrors(t *testing.T) {
	gen := &fakeGenerator{
		errs:      []error{errors.New("503"), errors.New("503")},
		responses: []string{"", "", `{"vendorName":"Acme"}`},
	}
	c := newTestClient(gen, 2)

	got, err := c.ExtractExpense(context.Background(), []byte("x"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "Acme", *got.VendorName)
	assert.Equal(t, 3, gen.calls)
}

func TestExtractExpense_RetriesExhausted(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}}
	c := newTestClient(gen, 1)

	_, err := c.ExtractExpense(context.Background(), []byte("x"), "application/pdf")
	require.Error(t, err)
	assert.Equal(t, 2, gen.calls)
}

func TestAnalyzeSpending(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`[{"vendorName":"Acme","reason":"duplicate seats","estimatedSaving":40,"action":"Switch to Annual"},
		  {"vendorName":"Lease Co","reason":"above market","estimatedSaving":"120.50","action":"Negotiate Lease"}]`,
	}}
	c := newTestClient(gen, 0)

	expenses := []domain.Expense{{ID: "e1", VendorName: "Acme", Amount: decimal.NewFromInt(10), Date: civil.Date{Year: 2024, Month: 1, Day: 1}}}
	got, err := c.AnalyzeSpending(context.Background(), expenses)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Acme", got[0].VendorName)
	assert.True(t, decimal.NewFromInt(40).Equal(got[0].EstimatedSaving))
	assert.Equal(t, "Switch to Annual", got[0].Action)
	assert.True(t, decimal.RequireFromString("120.5").Equal(got[1].EstimatedSaving))

	assert.Equal(t, "analysis-model", gen.lastModel)
	require.Len(t, gen.lastParts, 1)
	assert.Contains(t, gen.lastParts[0].Text, `"vendor_name":"Acme"`)
}

func TestAnalyzeSpending_Failure(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"not":"an array"}`}}
	c := newTestClient(gen, 0)

	_, err := c.AnalyzeSpending(context.Background(), nil)
	var anErr *AnalysisError
	require.True(t, errors.As(err, &anErr))
	assert.Equal(t, "analyze_spending", anErr.Op)
}

func TestDetectSubscriptions(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`[{"vendorName":"Netflix","monthlyCost":15.99,"renewalDate":"2024-04-01","isFlagged":true,"reason":"unused"},
		  {"vendorName":"Slack"}]`,
	}}
	c := newTestClient(gen, 0)

	got, err := c.DetectSubscriptions(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Netflix", *got[0].VendorName)
	assert.True(t, decimal.RequireFromString("15.99").Equal(*got[0].MonthlyCost))
	assert.Equal(t, "2024-04-01", *got[0].RenewalDate)
	assert.True(t, *got[0].Flagged)
	assert.Equal(t, "unused", *got[0].Reason)

	assert.Equal(t, "Slack", *got[1].VendorName)
	assert.Nil(t, got[1].MonthlyCost)
	assert.Nil(t, got[1].RenewalDate)
	assert.Nil(t, got[1].Flagged)
}

func TestDetectSubscriptions_ContextCanceled(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"[]"}}
	c := newTestClient(gen, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.DetectSubscriptions(ctx, nil)
	var anErr *AnalysisError
	require.True(t, errors.As(err, &anErr))
	assert.Equal(t, 0, gen.calls)
}
