package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chattitude/chattitude/internal/models"
)

// firstMessageContext stands in for the two-turn window when the transcript
// is still empty.
const firstMessageContext = "This is the first message."

// Classifier is the oracle seen by the rest of the system: it judges a
// message and never fails past its boundary.
type Classifier interface {
	Classify(ctx context.Context, message, recentContext string) models.Verdict
}

// OracleConfig configures the external classification service.
type OracleConfig struct {
	// Endpoint is the messages endpoint of the upstream service.
	Endpoint string
	Model    string
	// APIKey is injected server-side only; it never reaches a client.
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// OracleService sends one classification request per message to the external
// LLM service and parses the structured verdict out of its reply. No
// batching, no caching; every call is independent.
type OracleService struct {
	cfg    OracleConfig
	client *http.Client
	log    zerolog.Logger
}

func NewOracleService(cfg OracleConfig, log zerolog.Logger) *OracleService {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OracleService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// OracleError carries the upstream failure detail so the analyze relay can
// pass the status through.
type OracleError struct {
	StatusCode int
	Details    string
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle: upstream returned %d: %s", e.StatusCode, e.Details)
}

type oracleRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []oracleMessage `json:"messages"`
}

type oracleMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oracleResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// codeFence strips the markers the model sometimes wraps its JSON answer in.
var codeFence = regexp.MustCompile("```(?:json)?\n?")

// Analyze issues one classification request and returns the parsed verdict.
// Errors carry the upstream status where one exists; callers on the message
// path should use Classify instead.
func (o *OracleService) Analyze(ctx context.Context, message, recentContext string) (models.Verdict, error) {
	if recentContext == "" {
		recentContext = firstMessageContext
	}
	payload, err := json.Marshal(oracleRequest{
		Model:     o.cfg.Model,
		MaxTokens: o.cfg.MaxTokens,
		Messages: []oracleMessage{
			{Role: "user", Content: judgePrompt(message, recentContext)},
		},
	})
	if err != nil {
		return models.Verdict{}, fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", o.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := o.client.Do(req)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("oracle: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("oracle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Verdict{}, &OracleError{StatusCode: resp.StatusCode, Details: string(body)}
	}

	var parsed oracleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.Verdict{}, fmt.Errorf("oracle: decode response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return models.Verdict{}, fmt.Errorf("oracle: response has no content blocks")
	}

	text := strings.TrimSpace(codeFence.ReplaceAllString(parsed.Content[0].Text, ""))
	var v models.Verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return models.Verdict{}, fmt.Errorf("oracle: decode verdict: %w", err)
	}
	return models.NormalizeVerdict(v), nil
}

// Classify wraps Analyze for the message path: any failure degrades to the
// neutral zero-confidence verdict so sending is never blocked by oracle
// unavailability.
func (o *OracleService) Classify(ctx context.Context, message, recentContext string) models.Verdict {
	v, err := o.Analyze(ctx, message, recentContext)
	if err != nil {
		o.log.Warn().Err(err).Msg("classification failed, falling back to neutral")
		return models.NeutralVerdict()
	}
	return v
}

// RecentContext builds the classification context window: the last two turns
// as "Name: text" lines, in conversation order. The window is deliberately
// small; it bounds classification cost and keeps the oracle's judgment local
// to the immediate exchange.
func RecentContext(transcript []models.Turn) string {
	if len(transcript) == 0 {
		return firstMessageContext
	}
	start := len(transcript) - 2
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, 2)
	for _, t := range transcript[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s", t.AuthorName, t.Text))
	}
	return strings.Join(lines, "\n")
}

// judgePrompt instructs the oracle. The response contract is the load-bearing
// part: exactly one JSON object, optionally fenced, with the four verdict
// fields.
func judgePrompt(message, recentContext string) string {
	return fmt.Sprintf(`You are a strict debate judge. Actively look for destructive rhetorical techniques AND constructive methods in the current message. Be strict about dirty tricks, generous about constructive attempts.

CONTEXT: %s

CURRENT MESSAGE: "%s"

Destructive techniques to watch for: Strawmanning ("So you're saying..." when they did not say it), Loaded Question (a question with an unproven built-in premise), Personal Attack (attacking the person, not the argument), Whataboutism (pointing at another problem instead of answering), Slippery Slope.

Constructive techniques to watch for: Defensive Clarification (correcting a misreading of one's own position - this is constructive, not destructive), Seeking Genuine Clarification, Acknowledging Valid Points, Steelmanning, Providing Nuance.

Context matters: defending against a dirty trick is not itself destructive. Use "neutral" only for genuinely plain factual statements. Confidence: 90-100 textbook example, 75-89 clear example, 60-74 likely, below 60 mark as neutral.

Answer ONLY JSON:
{
  "technique": "exact name of the technique",
  "category": "destructive" or "constructive" or "neutral",
  "confidence": 60-100,
  "explanation": "concretely: what in the message matches the technique"
}`, recentContext, message)
}
