package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/harrison/projsort/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// FallbackKeyEnv is consulted when the configured credential variable is unset.
const FallbackKeyEnv = "OPENAI_API_KEY"

const (
	charsPerToken   = 4
	promptOverhead  = 400
	minSplitBatch   = 8
	pathHintSegment = 2
)

const systemPrompt = `You group files into projects using only the metadata provided.
Each document has an opaque id, its size in bytes, its extension, bucket tags
and a short normalized path hint. Return JSON only, shaped as
{"projects":[{"project_label":"snake_case_name","doc_ids":["id", ...],"confidence":0.5}]}.
Use at most 12 projects. Every id must appear in exactly one project.
Labels are short snake_case names. Confidence is between 0.50 and 0.95.`

// AssistedOptions configures the assisted strategy.
type AssistedOptions struct {
	BaseURL        string
	Model          string
	APIKeyEnv      string
	Timeout        time.Duration
	Attempts       int
	Backoff        time.Duration
	MaxBatchTokens int
}

// ChatClient is the slice of the go-openai client the strategy uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Assisted delegates grouping to an OpenAI-compatible chat completion
// service. Only masked metadata leaves the machine: the safe_id, size,
// extension, bucket tags and a normalized hint of the last two directory
// names. The credential is read from the environment and never stored.
type Assisted struct {
	client   ChatClient
	opts     AssistedOptions
	logger   Logger
	sleep    func(ctx context.Context, d time.Duration) error
	attempts int
}

// NewAssisted builds the strategy. A missing credential is not an error here:
// Cluster reports it as a fallback so the run degrades to local clustering.
func NewAssisted(opts AssistedOptions, logger Logger) *Assisted {
	opts = withDefaults(opts)
	a := &Assisted{opts: opts, logger: logger, sleep: sleepContext}

	key := lookupKey(opts.APIKeyEnv)
	if key == "" {
		return a
	}
	cfg := openai.DefaultConfig(key)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	a.client = openai.NewClientWithConfig(cfg)
	return a
}

// NewAssistedWithClient is NewAssisted with an explicit client; the
// environment is not consulted.
func NewAssistedWithClient(client ChatClient, opts AssistedOptions, logger Logger) *Assisted {
	return &Assisted{client: client, opts: withDefaults(opts), logger: logger, sleep: sleepContext}
}

func withDefaults(opts AssistedOptions) AssistedOptions {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBatchTokens <= 0 {
		opts.MaxBatchTokens = 6000
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	return opts
}

func lookupKey(envName string) string {
	if envName != "" {
		if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(os.Getenv(FallbackKeyEnv))
}

func (a *Assisted) Name() string {
	return models.ClusterModeAssisted
}

// payloadDoc is everything the service learns about one file.
type payloadDoc struct {
	ID       string   `json:"id"`
	Size     int64    `json:"size"`
	Ext      string   `json:"ext"`
	Tags     []string `json:"tags"`
	PathHint string   `json:"path_hint"`
}

type assistedResponse struct {
	Projects []struct {
		ProjectID    string   `json:"project_id"`
		ProjectLabel string   `json:"project_label"`
		DocIDs       []string `json:"doc_ids"`
		Confidence   float64  `json:"confidence"`
	} `json:"projects"`
}

// Cluster sends records in token-bounded batches. Any batch that ends in a
// fallback outcome aborts the whole strategy with a *FallbackError.
func (a *Assisted) Cluster(ctx context.Context, records []models.ClassifiedRecord) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	a.attempts = 0
	if a.client == nil {
		return nil, &FallbackError{Reason: "no credential in environment"}
	}

	docs := make([]payloadDoc, len(records))
	for i, rec := range records {
		docs[i] = maskRecord(rec)
	}

	var out []models.ClusterAssignment
	for _, batch := range batchByTokens(docs, a.opts.MaxBatchTokens) {
		assigned, err := a.clusterBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, assigned...)
	}
	return &Result{Strategy: models.ClusterModeAssisted, Assignments: out, Attempts: a.attempts}, nil
}

func (a *Assisted) clusterBatch(ctx context.Context, batch []payloadDoc) ([]models.ClusterAssignment, error) {
	var lastErr error
	for attempt := 1; attempt <= a.opts.Attempts; attempt++ {
		if attempt > 1 {
			if err := a.sleep(ctx, a.opts.Backoff); err != nil {
				return nil, err
			}
		}

		outcome := a.attempt(ctx, batch)
		switch outcome.Kind {
		case OutcomeSuccess:
			return outcome.Assignments, nil
		case OutcomeSplit:
			if len(batch) <= minSplitBatch {
				return nil, &FallbackError{Reason: "request rejected", Attempts: a.attempts, Err: outcome.Err}
			}
			a.debugf("assisted batch of %d rejected as too large; splitting", len(batch))
			mid := len(batch) / 2
			left, err := a.clusterBatch(ctx, batch[:mid])
			if err != nil {
				return nil, err
			}
			right, err := a.clusterBatch(ctx, batch[mid:])
			if err != nil {
				return nil, err
			}
			return append(left, right...), nil
		case OutcomeFallback:
			return nil, &FallbackError{Reason: "service refused request", Attempts: a.attempts, Err: outcome.Err}
		case OutcomeRetryable:
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			lastErr = outcome.Err
			a.warnf("assisted clustering attempt %d/%d failed: %v", attempt, a.opts.Attempts, outcome.Err)
		}
	}
	return nil, &FallbackError{Reason: "retries exhausted", Attempts: a.attempts, Err: lastErr}
}

// attempt performs one round trip and classifies its result.
func (a *Assisted) attempt(ctx context.Context, batch []payloadDoc) Outcome {
	a.attempts++

	body, err := json.Marshal(map[string][]payloadDoc{"documents": batch})
	if err != nil {
		return Outcome{Kind: OutcomeFallback, Err: fmt.Errorf("encode payload: %w", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model:       a.opts.Model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(body)},
		},
	})
	if err != nil {
		return classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return Outcome{Kind: OutcomeRetryable, Err: errors.New("no choices in response")}
	}

	assigned, err := parseAssignments(resp.Choices[0].Message.Content, batch)
	if err != nil {
		return Outcome{Kind: OutcomeRetryable, Err: err}
	}
	return Outcome{Kind: OutcomeSuccess, Assignments: assigned}
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func classifyError(err error) Outcome {
	switch code := statusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Outcome{Kind: OutcomeFallback, Err: err}
	case code == http.StatusBadRequest || code == http.StatusRequestEntityTooLarge:
		return Outcome{Kind: OutcomeSplit, Err: err}
	default:
		return Outcome{Kind: OutcomeRetryable, Err: err}
	}
}

// parseAssignments maps the service's answer back onto the batch. Ids the
// batch does not contain are ignored and the first project naming an id
// wins. An answer that places nothing is malformed.
func parseAssignments(content string, batch []payloadDoc) ([]models.ClusterAssignment, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var parsed assistedResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}

	inBatch := make(map[string]bool, len(batch))
	for _, d := range batch {
		inBatch[d.ID] = true
	}

	seen := make(map[string]bool)
	var out []models.ClusterAssignment
	for _, p := range parsed.Projects {
		label := p.ProjectLabel
		if label == "" {
			label = p.ProjectID
		}
		label = NormalizeLabel(label)
		for _, id := range p.DocIDs {
			if !inBatch[id] || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, models.ClusterAssignment{
				SafeID:       id,
				ProjectLabel: label,
				Confidence:   ClampConfidence(p.Confidence),
			})
		}
	}
	if len(out) == 0 {
		return nil, errors.New("malformed response: no documents assigned")
	}
	return out, nil
}

// maskRecord reduces a record to the fields allowed off the machine.
func maskRecord(rec models.ClassifiedRecord) payloadDoc {
	segs := dirSegments(rec.Record.Path)
	if len(segs) > pathHintSegment {
		segs = segs[len(segs)-pathHintSegment:]
	}
	hint := make([]string, 0, len(segs))
	for _, s := range segs {
		hint = append(hint, NormalizeLabel(s))
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return payloadDoc{
		ID:       rec.Record.SafeID,
		Size:     rec.Record.SizeBytes,
		Ext:      strings.ToLower(rec.Record.Extension),
		Tags:     tags,
		PathHint: strings.Join(hint, "/"),
	}
}

// batchByTokens packs documents into batches whose JSON stays under
// maxTokens at roughly four characters per token.
func batchByTokens(docs []payloadDoc, maxTokens int) [][]payloadDoc {
	budget := maxTokens - promptOverhead
	if budget < 1 {
		budget = 1
	}

	var batches [][]payloadDoc
	var current []payloadDoc
	used := 0
	for _, d := range docs {
		raw, _ := json.Marshal(d)
		cost := len(raw)/charsPerToken + 1
		if len(current) > 0 && used+cost > budget {
			batches = append(batches, current)
			current, used = nil, 0
		}
		current = append(current, d)
		used += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (a *Assisted) debugf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debugf(format, args...)
	}
}

func (a *Assisted) warnf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Warnf(format, args...)
	}
}
