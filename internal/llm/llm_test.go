package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func TestUnavailableAlwaysFails(t *testing.T) {
	_, err := Unavailable{Reason: "missing key"}.Generate(context.Background(), PromptSpec{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "missing key")
}

func TestNewWithoutCredentialsIsUnavailable(t *testing.T) {
	cases := []ProviderConfig{
		{Provider: ProviderGemini},
		{Provider: ProviderOpenAI},
		{Provider: ProviderGRPC},
		{Provider: ProviderNone},
		{},
	}
	for _, cfg := range cases {
		gen, err := New(context.Background(), cfg, nil)
		require.NoError(t, err)
		_, err = gen.Generate(context.Background(), PromptSpec{Prompt: "hi"})
		assert.ErrorIs(t, err, ErrUnavailable, "provider=%q", cfg.Provider)
	}

	_, err := New(context.Background(), ProviderConfig{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}

func TestOpenAIGenerate(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"replyText\":\"hi\"}"}}]}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAI("sk-test", "", srv.URL+"/v1")
	require.NoError(t, err)

	text, err := gen.Generate(context.Background(), PromptSpec{
		SystemInstruction: "be kind",
		History:           []Message{{Role: RoleUser, Text: "q"}, {Role: RoleModel, Text: "a"}},
		Prompt:            "next",
		Temperature:       0.4,
		MaxTokens:         256,
		JSON:              true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"replyText":"hi"}`, text)

	assert.Equal(t, DefaultOpenAIModel, got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "next", got.Messages[3].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.EqualValues(t, 256, got.MaxTokens)
}

func TestOpenAIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("case") {
		case "status":
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		case "empty":
			_, _ = w.Write([]byte(`{"choices":[]}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	for _, c := range []string{"status", "empty", "garbage"} {
		gen, err := NewOpenAI("k", "m", srv.URL+"/chat/completions?case="+c)
		require.NoError(t, err)
		_, err = gen.Generate(context.Background(), PromptSpec{Prompt: "x"})
		assert.Error(t, err, c)
	}

	_, err := NewOpenAI("", "", "")
	assert.Error(t, err)
}

func startGenerationServer(t *testing.T, gen Generator) *GRPC {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterGenerationService(srv, gen)
	go func() { _ = srv.Serve(lis) }()

	cfg := DefaultGRPCConfig("passthrough:///bufnet")
	cfg.ConnectTimeout = 2 * time.Second
	client, err := NewGRPC(cfg, nil, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		srv.Stop()
	})
	return client
}

func TestGRPCRoundTrip(t *testing.T) {
	seen := make(chan PromptSpec, 1)
	client := startGenerationServer(t, GeneratorFunc(func(_ context.Context, spec PromptSpec) (string, error) {
		seen <- spec
		return `{"replyText":"remote"}`, nil
	}))

	spec := PromptSpec{
		Model:             "tutor-large",
		SystemInstruction: "sys",
		History:           []Message{{Role: RoleUser, Text: "one"}, {Role: RoleModel, Text: "two"}},
		Prompt:            "three",
		Temperature:       0.5,
		MaxTokens:         512,
		JSON:              true,
	}
	text, err := client.Generate(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, `{"replyText":"remote"}`, text)
	assert.Equal(t, spec, <-seen)
}

func TestGRPCRemoteErrorSurfaces(t *testing.T) {
	client := startGenerationServer(t, Unavailable{Reason: "model offline"})

	_, err := client.Generate(context.Background(), PromptSpec{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errRemoteGeneration))
	assert.Contains(t, err.Error(), "model offline")
}

func TestGRPCHonoursDeadline(t *testing.T) {
	client := startGenerationServer(t, GeneratorFunc(func(ctx context.Context, _ PromptSpec) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Generate(ctx, PromptSpec{Prompt: "x"})
	assert.Error(t, err)
}
