package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/models"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(path string, tags ...string) models.ClassifiedRecord {
	name := filepath.Base(path)
	return models.ClassifiedRecord{
		Record: models.ScanRecord{
			Path:      path,
			SafeID:    fileutil.SafeID(path),
			Name:      name,
			Extension: filepath.Ext(name),
			SizeBytes: int64(len(path)),
		},
		Tags: tags,
	}
}

func labelsByPath(records []models.ClassifiedRecord, assignments []models.ClusterAssignment) map[string]string {
	byID := make(map[string]string)
	for _, a := range assignments {
		byID[a.SafeID] = a.ProjectLabel
	}
	out := make(map[string]string)
	for _, r := range records {
		out[r.Record.Path] = byID[r.Record.SafeID]
	}
	return out
}

func proj1Records() []models.ClassifiedRecord {
	return []models.ClassifiedRecord{
		record("/srv/inbox/proj1/src/a.py", "src"),
		record("/srv/inbox/proj1/src/b.py", "src"),
		record("/srv/inbox/proj1/docs/c.txt", "docs"),
	}
}

func twoProjectRecords() []models.ClassifiedRecord {
	return append(proj1Records(),
		record("/srv/inbox/proj2/src/x.py", "src"),
		record("/srv/inbox/proj2/src/y.py", "src"),
		record("/srv/inbox/proj2/docs/z.txt", "docs"),
	)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"proj1", "proj1"},
		{"My Project", "my_project"},
		{"  --Data  Pipeline!! ", "data_pipeline"},
		{"ÄÖÜ", "misc"},
		{"", "misc"},
		{strings.Repeat("a", 80), strings.Repeat("a", 64)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLabel(tt.in))
		})
	}
}

func TestDeriveLabel(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{
			name:  "common project folder",
			paths: []string{"/srv/inbox/proj1/src/a.py", "/srv/inbox/proj1/docs/c.txt"},
			want:  "proj1",
		},
		{
			name:  "generic leaf skipped",
			paths: []string{"/srv/inbox/proj1/src/a.py", "/srv/inbox/proj1/src/b.py"},
			want:  "proj1",
		},
		{
			name:  "single member uses its own directory",
			paths: []string{"/home/ana/Billing Tool/tests/test_x.py"},
			want:  "billing_tool",
		},
		{
			name:  "numeric segments are generic",
			paths: []string{"/data/2024/proj9/01/a.csv", "/data/2024/proj9/02/b.csv"},
			want:  "proj9",
		},
		{
			name:  "generic prefix falls back to majority",
			paths: []string{"/home/alpha/a.py", "/home/beta/b.py", "/home/beta/c.py"},
			want:  "beta",
		},
		{
			name:  "majority tie is lexicographic",
			paths: []string{"/tmp/zeta/a.py", "/tmp/alpha/b.py"},
			want:  "alpha",
		},
		{
			name:  "nothing usable",
			paths: []string{"/tmp/src/a.py", "/home/docs/b.md"},
			want:  models.UnclusteredLabel,
		},
		{
			name: "empty",
			want: models.UnclusteredLabel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveLabel(tt.paths))
		})
	}
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.5, ClampConfidence(0.1))
	assert.Equal(t, 0.95, ClampConfidence(1.3))
	assert.Equal(t, 0.7, ClampConfidence(0.7))
}

func TestLocalSingleProjectScenario(t *testing.T) {
	records := proj1Records()

	res, err := NewLocal(42, 12).Cluster(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, res.Assignments, 3)

	for path, label := range labelsByPath(records, res.Assignments) {
		assert.Equal(t, "proj1", label, path)
	}
	for _, a := range res.Assignments {
		assert.GreaterOrEqual(t, a.Confidence, 0.5)
		assert.LessOrEqual(t, a.Confidence, 0.95)
	}
}

func TestLocalSeparatesProjects(t *testing.T) {
	records := twoProjectRecords()

	res, err := NewLocal(42, 12).Cluster(context.Background(), records)
	require.NoError(t, err)

	got := labelsByPath(records, res.Assignments)
	for path, label := range got {
		if strings.Contains(path, "/proj1/") {
			assert.Equal(t, "proj1", label, path)
		} else {
			assert.Equal(t, "proj2", label, path)
		}
	}
}

func TestLocalIsDeterministic(t *testing.T) {
	records := twoProjectRecords()
	reversed := make([]models.ClassifiedRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}

	first, err := NewLocal(42, 12).Cluster(context.Background(), records)
	require.NoError(t, err)
	second, err := NewLocal(42, 12).Cluster(context.Background(), reversed)
	require.NoError(t, err)

	a, _ := complete(records, first.Assignments)
	b, _ := complete(records, second.Assignments)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("assignments differ between runs (-first +second):\n%s", diff)
	}
}

func TestBuildVectorsIsBitStable(t *testing.T) {
	records := twoProjectRecords()
	first, dim := buildVectors(records)
	require.NotEmpty(t, first)
	for i := 0; i < 25; i++ {
		again, againDim := buildVectors(records)
		require.Equal(t, dim, againDim)
		require.Equal(t, first, again)
	}
	for _, v := range first {
		var norm float64
		for _, f := range v {
			norm += f.w * f.w
		}
		if len(v) > 0 {
			assert.InDelta(t, 1.0, norm, 1e-9)
		}
	}
}

func TestLocalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocal(42, 12).Cluster(ctx, proj1Records())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineEmptyInput(t *testing.T) {
	run, err := NewEngine(NewLocal(0, 0), nil, nopLogger{}).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, run.Assignments)
	assert.Equal(t, 0, run.Summary.Records)
	assert.Equal(t, "local", run.Summary.Strategy)
	assert.False(t, run.Summary.Fallback)

	res := StageResult(run)
	assert.Equal(t, models.StatusPartial, res.Status)
	assert.Equal(t, 0, res.Counts["records"])
}

func TestCompleteFillsAndDedupes(t *testing.T) {
	records := proj1Records()
	ids := []string{records[0].Record.SafeID, records[1].Record.SafeID, records[2].Record.SafeID}

	got, dropped := complete(records, []models.ClusterAssignment{
		{SafeID: ids[0], ProjectLabel: "alpha", Confidence: 0.9},
		{SafeID: ids[0], ProjectLabel: "beta", Confidence: 0.9},
		{SafeID: "unknown", ProjectLabel: "gamma", Confidence: 0.9},
		{SafeID: ids[1], ProjectLabel: "alpha", Confidence: 2},
	})
	assert.Equal(t, 2, dropped)
	require.Len(t, got, 3)

	byID := make(map[string]models.ClusterAssignment)
	for _, a := range got {
		byID[a.SafeID] = a
	}
	assert.Equal(t, "alpha", byID[ids[0]].ProjectLabel)
	assert.Equal(t, 0.95, byID[ids[1]].Confidence)
	assert.Equal(t, models.UnclusteredLabel, byID[ids[2]].ProjectLabel)
}

// fakeChat answers with every document in one project, or with err.
type fakeChat struct {
	mu       sync.Mutex
	calls    int
	err      error
	maxDocs  int
	label    string
	requests []string
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	content := req.Messages[len(req.Messages)-1].Content
	f.requests = append(f.requests, content)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}

	var payload struct {
		Documents []payloadDoc `json:"documents"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	if f.maxDocs > 0 && len(payload.Documents) > f.maxDocs {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "payload too large"}
	}
	return chatResponse(f.label, payload.Documents), nil
}

func chatResponse(label string, docs []payloadDoc) openai.ChatCompletionResponse {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	body, _ := json.Marshal(map[string]any{
		"projects": []map[string]any{{"project_label": label, "doc_ids": ids, "confidence": 0.8}},
	})
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: string(body)}}},
	}
}

func newTestAssisted(client ChatClient, attempts int) *Assisted {
	a := NewAssistedWithClient(client, AssistedOptions{Attempts: attempts, Backoff: time.Millisecond, Timeout: time.Second}, nopLogger{})
	a.sleep = func(context.Context, time.Duration) error { return nil }
	return a
}

func TestAssistedOutcomes(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantFallback bool
		wantAttempts int
	}{
		{name: "success", wantAttempts: 1},
		{name: "server error retried then fallback", err: &openai.APIError{HTTPStatusCode: 503}, wantFallback: true, wantAttempts: 3},
		{name: "timeout retried then fallback", err: context.DeadlineExceeded, wantFallback: true, wantAttempts: 3},
		{name: "auth failure falls back at once", err: &openai.APIError{HTTPStatusCode: 401}, wantFallback: true, wantAttempts: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{err: tt.err, label: "Remote Project"}
			records := proj1Records()

			run, err := NewEngine(newTestAssisted(chat, 3), NewLocal(42, 12), nopLogger{}).Run(context.Background(), records)
			require.NoError(t, err)

			assert.Equal(t, tt.wantAttempts, chat.calls)
			assert.Equal(t, tt.wantAttempts, run.Summary.Attempts)
			assert.Equal(t, tt.wantFallback, run.Summary.Fallback)
			assert.Equal(t, models.ClusterModeAssisted, run.Summary.RequestedMode)
			require.Len(t, run.Assignments, len(records))

			want := "remote_project"
			wantStrategy := models.ClusterModeAssisted
			if tt.wantFallback {
				want = "proj1"
				wantStrategy = models.ClusterModeLocal
				assert.NotEmpty(t, run.Summary.FallbackReason)
			}
			assert.Equal(t, wantStrategy, run.Summary.Strategy)
			for _, a := range run.Assignments {
				assert.Equal(t, want, a.ProjectLabel)
			}
		})
	}
}

func TestAssistedMalformedResponseIsRetried(t *testing.T) {
	calls := 0
	client := chatFunc(func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		calls++
		if calls == 1 {
			return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "not json"}}}}, nil
		}
		var payload struct {
			Documents []payloadDoc `json:"documents"`
		}
		require.NoError(t, json.Unmarshal([]byte(req.Messages[1].Content), &payload))
		return chatResponse("proj1", payload.Documents), nil
	})

	res, err := newTestAssisted(client, 3).Cluster(context.Background(), proj1Records())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, res.Assignments, 3)
}

type chatFunc func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)

func (f chatFunc) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return f(req)
}

func TestAssistedSplitsOversizedBatches(t *testing.T) {
	var records []models.ClassifiedRecord
	for i := 0; i < 20; i++ {
		records = append(records, record(fmt.Sprintf("/srv/inbox/proj1/src/m%02d.py", i), "src"))
	}
	chat := &fakeChat{maxDocs: 8, label: "proj1"}

	res, err := newTestAssisted(chat, 3).Cluster(context.Background(), records)
	require.NoError(t, err)
	assert.Len(t, res.Assignments, 20)
	// 20 rejected, 10 rejected twice, then four batches of 5 accepted
	assert.Equal(t, 7, chat.calls)
}

func TestAssistedPayloadIsMasked(t *testing.T) {
	chat := &fakeChat{label: "proj1"}
	rec := record("/home/ana/secret-client/proj1/src/payroll_export.py", "src")
	rec.Record.ContentHint = "API_TOKEN=abc"

	_, err := newTestAssisted(chat, 1).Cluster(context.Background(), []models.ClassifiedRecord{rec})
	require.NoError(t, err)
	require.Len(t, chat.requests, 1)

	body := chat.requests[0]
	assert.Contains(t, body, rec.Record.SafeID)
	assert.Contains(t, body, `"path_hint":"proj1/src"`)
	for _, leaked := range []string{"payroll_export", "secret", "/home/ana", "API_TOKEN"} {
		assert.NotContains(t, body, leaked)
	}
}

func TestAssistedWithoutCredentialFallsBack(t *testing.T) {
	t.Setenv("PROJSORT_TEST_KEY", "")
	t.Setenv(FallbackKeyEnv, "")

	run, err := NewEngine(NewAssisted(AssistedOptions{APIKeyEnv: "PROJSORT_TEST_KEY"}, nopLogger{}), NewLocal(42, 12), nopLogger{}).
		Run(context.Background(), proj1Records())
	require.NoError(t, err)
	assert.True(t, run.Summary.Fallback)
	assert.Equal(t, 0, run.Summary.Attempts)
	assert.Contains(t, run.Summary.FallbackReason, "credential")
}

func TestAssistedOverHTTP(t *testing.T) {
	var mu sync.Mutex
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()

		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var req openai.ChatCompletionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var payload struct {
			Documents []payloadDoc `json:"documents"`
		}
		_ = json.Unmarshal([]byte(req.Messages[1].Content), &payload)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("proj1", payload.Documents))
	}))
	defer srv.Close()

	t.Setenv("PROJSORT_TEST_KEY", "sk-test")
	a := NewAssisted(AssistedOptions{BaseURL: srv.URL, APIKeyEnv: "PROJSORT_TEST_KEY", Attempts: 2, Backoff: time.Millisecond, Timeout: 5 * time.Second}, nopLogger{})

	run, err := NewEngine(a, NewLocal(42, 12), nopLogger{}).Run(context.Background(), proj1Records())
	require.NoError(t, err)
	assert.False(t, run.Summary.Fallback)
	assert.Equal(t, map[string]int{"proj1": 3}, run.Summary.Projects)
	require.NotEmpty(t, auth)
	assert.Equal(t, "Bearer sk-test", auth[0])
}

func TestAssistedUnreachableFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	t.Setenv("PROJSORT_TEST_KEY", "sk-test")
	a := NewAssisted(AssistedOptions{BaseURL: url, APIKeyEnv: "PROJSORT_TEST_KEY", Attempts: 2, Backoff: time.Millisecond, Timeout: time.Second}, nopLogger{})

	records := twoProjectRecords()
	run, err := NewEngine(a, NewLocal(42, 12), nopLogger{}).Run(context.Background(), records)
	require.NoError(t, err)

	assert.True(t, run.Summary.Fallback)
	assert.Equal(t, 2, run.Summary.Attempts)
	assert.Equal(t, models.ClusterModeLocal, run.Summary.Strategy)
	require.Len(t, run.Assignments, len(records))
	for _, a := range run.Assignments {
		assert.NotEqual(t, models.UnclusteredLabel, a.ProjectLabel)
	}
}

func TestAssistedCancelledDoesNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := chatFunc(func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		cancel()
		return openai.ChatCompletionResponse{}, context.Canceled
	})

	_, err := NewEngine(newTestAssisted(client, 3), NewLocal(42, 12), nopLogger{}).Run(ctx, proj1Records())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBatchByTokens(t *testing.T) {
	docs := make([]payloadDoc, 50)
	for i := range docs {
		docs[i] = payloadDoc{ID: fmt.Sprintf("%064d", i), Ext: ".py", Tags: []string{"src"}, PathHint: "proj1/src"}
	}

	batches := batchByTokens(docs, promptOverhead+100)
	total := 0
	for _, b := range batches {
		assert.NotEmpty(t, b)
		total += len(b)
	}
	assert.Equal(t, 50, total)
	assert.Greater(t, len(batches), 1)

	assert.Len(t, batchByTokens(docs, 100000), 1)
}

func TestArtifactsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	run, err := NewEngine(NewLocal(42, 12), nil, nopLogger{}).Run(context.Background(), proj1Records())
	require.NoError(t, err)

	assignments := filepath.Join(dir, "clusters.jsonl")
	summary := filepath.Join(dir, "clusters.summary.json")
	require.NoError(t, WriteArtifacts(run, assignments, summary))

	loaded, err := LoadAssignments(assignments)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)

	var s models.ClusterSummary
	require.NoError(t, fileutil.ReadJSON(summary, &s))
	assert.Equal(t, run.Summary.RunID, s.RunID)
	assert.Equal(t, map[string]int{"proj1": 3}, s.Projects)

	res := StageResult(run)
	assert.Equal(t, models.StatusSuccess, res.Status)
}

func TestLoadRecordsJoinsTags(t *testing.T) {
	dir := t.TempDir()
	records := proj1Records()

	scanPath := filepath.Join(dir, "scan.jsonl")
	w, err := fileutil.CreateJSONL[models.ScanRecord](scanPath)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, w.Write(r.Record))
	}
	require.NoError(t, w.Close())

	classifyPath := filepath.Join(dir, "classify.jsonl")
	cw, err := fileutil.CreateJSONL[models.ClassificationScore](classifyPath)
	require.NoError(t, err)
	require.NoError(t, cw.Write(models.ClassificationScore{SafeID: records[0].Record.SafeID, Tags: []string{"src"}, Score: 1}))
	require.NoError(t, cw.Close())

	loaded, err := LoadRecords(scanPath, classifyPath)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, []string{"src"}, loaded[0].Tags)
	assert.Equal(t, []string{models.UnclassifiedTag}, loaded[1].Tags)
}
