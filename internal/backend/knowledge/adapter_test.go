package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/vulcanlabs/vulcan/internal/backend"
	"github.com/vulcanlabs/vulcan/internal/log"
	"github.com/vulcanlabs/vulcan/internal/testutil"
)

// stubRetriever returns canned results and records the requested limit.
type stubRetriever struct {
	results   []Result
	err       error
	lastKB    string
	lastQuery string
	lastLimit int
}

func (s *stubRetriever) Retrieve(_ context.Context, kbID, query string, limit int) ([]Result, error) {
	s.lastKB = kbID
	s.lastQuery = query
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func docs(contents ...string) []Result {
	out := make([]Result, len(contents))
	for i, c := range contents {
		out[i] = Result{
			Document:   Document{ID: "doc-" + c[:1], KnowledgeBaseID: "kb-1", Content: c},
			Similarity: 0.9,
		}
	}
	return out
}

func newTestAdapter(t *testing.T, mock *testutil.MockModel, r Retriever) *Adapter {
	t.Helper()

	g := genkit.Init(context.Background())
	mock.Register(g)

	a, err := New(Config{
		Genkit:    g,
		Logger:    log.NewNop(),
		Retriever: r,
		ModelName: testutil.MockModelName,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	r := &stubRetriever{}

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing genkit", cfg: Config{Logger: log.NewNop(), Retriever: r, ModelName: "m"}},
		{name: "missing retriever", cfg: Config{Genkit: g, Logger: log.NewNop(), ModelName: "m"}},
		{name: "missing model", cfg: Config{Genkit: g, Logger: log.NewNop(), Retriever: r}},
		{name: "missing logger", cfg: Config{Genkit: g, Retriever: r, ModelName: "m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := New(tt.cfg); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestClampMaxResults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int
		want int
	}{
		{0, 5},
		{-3, 1},
		{1, 1},
		{5, 5},
		{20, 20},
		{21, 20},
		{100, 20},
	}

	for _, tt := range tests {
		if got := ClampMaxResults(tt.in); got != tt.want {
			t.Errorf("ClampMaxResults(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStream_InvalidInput(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t, testutil.NewMockModel("answer"), &stubRetriever{})

	if err := a.Stream(context.Background(), "", "query", 0, nil); !errors.Is(err, backend.ErrInvalidRequest) {
		t.Errorf("empty kb id: error = %v, want ErrInvalidRequest", err)
	}
	if err := a.Stream(context.Background(), "kb-1", "   ", 0, nil); !errors.Is(err, backend.ErrInvalidRequest) {
		t.Errorf("blank query: error = %v, want ErrInvalidRequest", err)
	}
}

func TestStream_ForwardsChunks(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockModel("Terraform modules are reusable configuration units.")
	r := &stubRetriever{results: docs("terraform module docs", "registry usage docs")}
	a := newTestAdapter(t, mock, r)

	var chunks []string
	err := a.Stream(context.Background(), "kb-1", "terraform modules", 0, func(_ context.Context, text string) error {
		chunks = append(chunks, text)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	if len(chunks) < 2 {
		t.Errorf("got %d chunks, want incremental streaming", len(chunks))
	}
	if got := strings.Join(chunks, ""); got != "Terraform modules are reusable configuration units." {
		t.Errorf("concatenated stream = %q", got)
	}

	if r.lastKB != "kb-1" || r.lastQuery != "terraform modules" {
		t.Errorf("retriever saw kb=%q query=%q", r.lastKB, r.lastQuery)
	}
	if r.lastLimit != DefaultMaxResults {
		t.Errorf("retriever limit = %d, want default %d", r.lastLimit, DefaultMaxResults)
	}
}

func TestStream_ClampsMaxResults(t *testing.T) {
	t.Parallel()

	r := &stubRetriever{results: docs("some context")}
	a := newTestAdapter(t, testutil.NewMockModel("answer"), r)

	if err := a.Stream(context.Background(), "kb-1", "q", 50, nil); err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if r.lastLimit != MaxMaxResults {
		t.Errorf("retriever limit = %d, want %d", r.lastLimit, MaxMaxResults)
	}
}

func TestStream_RetrieverFailure(t *testing.T) {
	t.Parallel()

	r := &stubRetriever{err: errors.New("dial tcp: connection refused")}
	a := newTestAdapter(t, testutil.NewMockModel("answer"), r)

	err := a.Stream(context.Background(), "kb-1", "q", 0, nil)
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestStream_ModelFailure(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockModel("answer")
	mock.FailWith(testutil.ErrMockUnavailable)
	a := newTestAdapter(t, mock, &stubRetriever{results: docs("context")})

	err := a.Stream(context.Background(), "kb-1", "q", 0, nil)
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestStream_CallbackAbort(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockModel("a long enough answer to produce several chunks")
	a := newTestAdapter(t, mock, &stubRetriever{results: docs("context")})

	abort := errors.New("client went away")
	err := a.Stream(context.Background(), "kb-1", "q", 0, func(context.Context, string) error {
		return abort
	})
	if !errors.Is(err, abort) {
		t.Errorf("error = %v, want the callback's abort error", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	got := buildPrompt("what is a module?", docs("first doc", "second doc"))
	for _, want := range []string{"[1] first doc", "[2] second doc", "Question: what is a module?"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}

	empty := buildPrompt("anything", nil)
	if !strings.Contains(empty, "no documents matched") {
		t.Errorf("empty-context prompt missing marker:\n%s", empty)
	}
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	a := &Adapter{}
	md := a.Metadata("kb-1", "kb: original question")
	if md["knowledge_base_id"] != "kb-1" {
		t.Errorf("knowledge_base_id = %v", md["knowledge_base_id"])
	}
	if md["query_type"] != "rag" {
		t.Errorf("query_type = %v", md["query_type"])
	}
	if md["original_query"] != "kb: original question" {
		t.Errorf("original_query = %v", md["original_query"])
	}
}
