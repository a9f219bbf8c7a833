// Package extract calls the language-model collaborator that turns page text
// into candidate event records.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"horse.fit/event-pipeline/internal/langdetect"
)

const (
	DefaultModel         = "gpt-4o-mini"
	DefaultMaxTokens     = 16000
	DefaultTimeout       = 3 * time.Minute
	DefaultRatePerMinute = 20
	defaultRetryWait     = 2 * time.Second
	minFullDocTokens     = 2048
	breakerTripFailures  = 5
	breakerOpenTimeout   = time.Minute
)

var windowLabelPattern = regexp.MustCompile(`^part (\d+) of (\d+)$`)

const systemPrompt = `You extract event listings from the text of a web page.
Return a JSON array only. Each element is one event object with these fields:
name (string, required), event_type (one of conference, hackathon, meetup, workshop, summit, party, networking, other),
event_date (YYYY-MM-DD, required), start_time, end_time, venue, city, country, organizer,
event_url, rsvp_url, image_url, tags (array of strings), blockchain_focus (array of strings), description.
Use null for unknown fields. Do not invent events. Skip promotions, discount codes and navigation links.
If the page lists no events, return [].`

// CallError is a failed extraction call for one document or window.
type CallError struct {
	Label string
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("extraction call (%s): %v", e.Label, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	MaxTokens     int
	Timeout       time.Duration
	RatePerMinute int
	// RetryWait is the pause before the single retry of a failed call.
	RetryWait time.Duration
	// HTTPClient overrides the transport; used by tests.
	HTTPClient *http.Client
}

// Client sends documents to an OpenAI-compatible chat-completions endpoint.
// Calls are rate limited, guarded by a circuit breaker and retried once.
type Client struct {
	api       openai.Client
	model     string
	maxTokens int
	retryWait time.Duration
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[string]
	logger    zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("extraction API key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = defaultRetryWait
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
	}

	breakerLogger := logger.With().Str("component", "extract").Logger()
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "extraction",
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("extraction circuit breaker state changed")
		},
	})

	return &Client{
		api:       openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		retryWait: retryWait,
		limiter:   rate.NewLimiter(limit, 1),
		breaker:   breaker,
		logger:    logger,
	}, nil
}

// Extract sends one document window and returns the model's raw text. The
// returned text is untrusted and goes through the recovery parser.
func (c *Client) Extract(ctx context.Context, document string, label string) (string, error) {
	if strings.TrimSpace(document) == "" {
		return "", &CallError{Label: label, Err: fmt.Errorf("document is empty")}
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructionsFor(document)),
			openai.UserMessage(userMessage(document, label)),
		},
		MaxTokens:   openai.Int(int64(c.tokenBudget(document, label))),
		Temperature: openai.Float(0),
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryWait
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, 1), ctx)

	attempt := 0
	var out string
	err := backoff.Retry(func() error {
		attempt++
		text, err := c.call(ctx, params)
		if err == nil {
			out = text
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn().
			Err(err).
			Str("window", label).
			Int("attempt", attempt).
			Msg("extraction call failed")
		return err
	}, retry)
	if err != nil {
		return "", &CallError{Label: label, Err: err}
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}

	return c.breaker.Execute(func() (string, error) {
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("response has no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// tokenBudget gives every window of a split document the full budget, and
// sizes a single document by its length.
func (c *Client) tokenBudget(document string, label string) int {
	if m := windowLabelPattern.FindStringSubmatch(label); m != nil {
		if total, _ := strconv.Atoi(m[2]); total > 1 {
			return c.maxTokens
		}
	}
	estimate := len([]rune(document)) / 3
	return min(max(estimate, minFullDocTokens), c.maxTokens)
}

func instructionsFor(document string) string {
	language, ok := langdetect.Detect(document)
	if !ok || language.IsEnglish() {
		return systemPrompt
	}
	return systemPrompt + "\nThe page is written in " + language.Name +
		". Keep names as written on the page and emit dates as YYYY-MM-DD."
}

func userMessage(document string, label string) string {
	if strings.HasPrefix(label, "part ") {
		return "This is " + label + " of a long page. Events cut off at the edges appear in full in the neighbouring part.\n\n" + document
	}
	return document
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}
