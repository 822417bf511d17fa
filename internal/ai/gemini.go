package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/dvloznov/costpilot/internal/config"
	"github.com/dvloznov/costpilot/internal/domain"
)

var tracer = otel.Tracer("costpilot/ai")

// Generator is the subset of the genai Models service the client uses.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options tunes a GeminiClient.
type Options struct {
	ExtractionModel   string
	AnalysisModel     string
	ExtractionRetries int
	AnalysisRetries   int
	RequestsPerSec    float64 // 0 means unlimited

	// RetryInitialInterval overrides the first backoff wait; zero keeps the
	// library default.
	RetryInitialInterval time.Duration
}

// GeminiClient implements Extractor and Analyzer on top of Gemini.
type GeminiClient struct {
	gen     Generator
	opts    Options
	limiter *rate.Limiter
	log     zerolog.Logger
}

var (
	_ Extractor = (*GeminiClient)(nil)
	_ Analyzer  = (*GeminiClient)(nil)
)

// NewGeminiClient creates a genai client from configuration.
func NewGeminiClient(ctx context.Context, cfg config.Config, log zerolog.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.Gemini.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: cfg.Gemini.APIVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}

	return NewWithGenerator(client.Models, Options{
		ExtractionModel:   cfg.Gemini.ExtractionModel,
		AnalysisModel:     cfg.Gemini.AnalysisModel,
		ExtractionRetries: cfg.Extraction.MaxRetries,
		AnalysisRetries:   cfg.Analysis.MaxRetries,
		RequestsPerSec:    cfg.Gemini.RequestsPerSec,
	}, log), nil
}

// NewWithGenerator builds a client around an arbitrary Generator.
func NewWithGenerator(gen Generator, opts Options, log zerolog.Logger) *GeminiClient {
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
		burst = max(1, int(opts.RequestsPerSec))
	}
	return &GeminiClient{
		gen:     gen,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With().Str("component", "gemini").Logger(),
	}
}

// ExtractExpense sends the document inline and parses the structured result.
// Any failure, including an unparseable response, is an *ExtractionError.
func (c *GeminiClient) ExtractExpense(ctx context.Context, content []byte, mediaType string) (*ExtractedExpense, error) {
	ctx, span := tracer.Start(ctx, "ai.ExtractExpense", trace.WithAttributes(
		attribute.String("ai.model", c.opts.ExtractionModel),
		attribute.String("document.media_type", mediaType),
		attribute.Int("document.size", len(content)),
	))
	defer span.End()

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mediaType, Data: content}},
				{Text: extractionPrompt},
			},
		},
	}

	result, err := generateAndParse(ctx, c, c.opts.ExtractionModel, contents, extractionSchema, c.opts.ExtractionRetries,
		func(text string) (*ExtractedExpense, error) {
			obj, err := decodeObject(text)
			if err != nil {
				return nil, err
			}
			return transformExtraction(obj)
		})
	if err != nil {
		recordSpanError(span, err)
		return nil, &ExtractionError{MediaType: mediaType, Err: err}
	}
	return result, nil
}

// AnalyzeSpending asks the model for savings opportunities.
func (c *GeminiClient) AnalyzeSpending(ctx context.Context, expenses []domain.Expense) ([]SavingsFinding, error) {
	const op = "analyze_spending"
	ctx, span := c.startAnalysisSpan(ctx, op, len(expenses))
	defer span.End()

	findings, err := analyze(ctx, c, analysisPrompt, expenses, analysisSchema, func(text string) ([]SavingsFinding, error) {
		items, err := decodeArray(text)
		if err != nil {
			return nil, err
		}
		return transformFindings(items)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, &AnalysisError{Op: op, Err: err}
	}
	span.SetAttributes(attribute.Int("ai.results", len(findings)))
	return findings, nil
}

// DetectSubscriptions asks the model for recurring-cost candidates.
func (c *GeminiClient) DetectSubscriptions(ctx context.Context, expenses []domain.Expense) ([]SubscriptionCandidate, error) {
	const op = "detect_subscriptions"
	ctx, span := c.startAnalysisSpan(ctx, op, len(expenses))
	defer span.End()

	candidates, err := analyze(ctx, c, subscriptionPrompt, expenses, subscriptionSchema, func(text string) ([]SubscriptionCandidate, error) {
		items, err := decodeArray(text)
		if err != nil {
			return nil, err
		}
		return transformCandidates(items)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, &AnalysisError{Op: op, Err: err}
	}
	span.SetAttributes(attribute.Int("ai.results", len(candidates)))
	return candidates, nil
}

func (c *GeminiClient) startAnalysisSpan(ctx context.Context, op string, n int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ai."+op, trace.WithAttributes(
		attribute.String("ai.model", c.opts.AnalysisModel),
		attribute.Int("expenses.count", n),
	))
}

func analyze[T any](ctx context.Context, c *GeminiClient, prompt string, expenses []domain.Expense, schema *genai.Schema, parse func(string) ([]T, error)) ([]T, error) {
	payload, err := json.Marshal(expenses)
	if err != nil {
		return nil, fmt.Errorf("marshal expenses: %w", err)
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt + string(payload)}}},
	}
	return generateAndParse(ctx, c, c.opts.AnalysisModel, contents, schema, c.opts.AnalysisRetries, parse)
}

// generateAndParse calls the model with bounded exponential-backoff retry.
// Responses that cannot be parsed are permanent failures and are not retried.
func generateAndParse[T any](
	ctx context.Context,
	c *GeminiClient,
	model string,
	contents []*genai.Content,
	schema *genai.Schema,
	retries int,
	parse func(string) (T, error),
) (T, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	attempt := 0
	op := func() (T, error) {
		var zero T
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		resp, err := c.gen.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return zero, backoff.Permanent(fmt.Errorf("generate content: %w", err))
			}
			c.log.Warn().Err(err).Str("model", model).Int("attempt", attempt).Msg("generate content failed")
			return zero, fmt.Errorf("generate content: %w", err)
		}
		if resp == nil {
			return zero, backoff.Permanent(errors.New("nil response from model"))
		}

		raw := resp.Text()
		parsed, err := parse(raw)
		if err != nil {
			c.log.Debug().Str("raw_response", raw).Msg("unparseable model output")
			return zero, backoff.Permanent(fmt.Errorf("parse model output: %w", err))
		}
		return parsed, nil
	}

	b := backoff.NewExponentialBackOff()
	if c.opts.RetryInitialInterval > 0 {
		b.InitialInterval = c.opts.RetryInitialInterval
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(0, retries))+1),
	)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
