package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/tutor-engine/internal/domain"
	"github.com/ashureev/tutor-engine/internal/identity"
	"github.com/ashureev/tutor-engine/internal/tutor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type echoTutor struct{}

func (echoTutor) Respond(_ context.Context, req *domain.TutorRequest) (*tutor.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, &tutor.Error{Kind: tutor.KindInvalidRequest, Err: err}
	}
	if req.LearnerID == "offline" {
		return nil, &tutor.Error{Kind: tutor.KindContextUnavailable, Err: errors.New("store down")}
	}
	done := make(chan error, 1)
	done <- nil
	resp := domain.TutorResponse{ReplyText: "echo: " + req.Message, EmotionalTone: domain.ToneFriendlyAdaptive}
	resp.Normalize()
	return &tutor.Result{Response: resp, Source: domain.SourcePrimary, Persisted: done}, nil
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func dial(t *testing.T, h *Handler) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(identity.Middleware(h))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/tutor?session_id=tab-1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, frame string) outbound {
	t.Helper()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var out outbound
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestStreamPingPong(t *testing.T) {
	conn, ctx := dial(t, NewHandler(echoTutor{}, nil, Options{IsDev: true}))

	out := roundTrip(t, ctx, conn, `{"type":"ping"}`)
	assert.Equal(t, TypePong, out.Type)
}

func TestStreamRespondsPerFrame(t *testing.T) {
	conn, ctx := dial(t, NewHandler(echoTutor{}, nil, Options{IsDev: true}))

	for _, msg := range []string{"first", "second"} {
		out := roundTrip(t, ctx, conn,
			`{"learnerId":"learner-1","message":"`+msg+`","sessionKind":"practice"}`)
		require.Equal(t, TypeResponse, out.Type)
		require.NotNil(t, out.Response)
		assert.Equal(t, "echo: "+msg, out.Response.ReplyText)
		assert.Equal(t, domain.SourcePrimary, out.Source)
	}
}

func TestStreamReportsErrors(t *testing.T) {
	conn, ctx := dial(t, NewHandler(echoTutor{}, nil, Options{IsDev: true}))

	tests := []struct {
		frame string
		kind  string
	}{
		{`not json`, string(tutor.KindInvalidRequest)},
		{`{"type":"dance"}`, string(tutor.KindInvalidRequest)},
		{`{"type":"request","learnerId":"learner-1","sessionKind":"practice"}`, string(tutor.KindInvalidRequest)},
		{`{"learnerId":"offline","message":"hi","sessionKind":"practice"}`, string(tutor.KindContextUnavailable)},
	}
	for _, tt := range tests {
		out := roundTrip(t, ctx, conn, tt.frame)
		assert.Equal(t, TypeError, out.Type, tt.frame)
		assert.Equal(t, tt.kind, out.Kind, tt.frame)
		assert.NotContains(t, out.Error, "store down")
	}

	// The connection stays usable after errors.
	assert.Equal(t, TypePong, roundTrip(t, ctx, conn, `{"type":"ping"}`).Type)
}

func TestStreamRateLimit(t *testing.T) {
	conn, ctx := dial(t, NewHandler(echoTutor{}, nil, Options{IsDev: true, Limiter: denyAll{}}))

	out := roundTrip(t, ctx, conn, `{"learnerId":"learner-1","message":"hi","sessionKind":"practice"}`)
	assert.Equal(t, TypeError, out.Type)
	assert.Equal(t, "rate_limited", out.Kind)
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	h := NewHandler(echoTutor{}, nil, Options{AllowedOrigin: "https://tutor.example"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Origin": {"https://evil.example"}},
	})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 403, resp.StatusCode)
	}
}

func TestConnManagerTracksSessions(t *testing.T) {
	conns := NewConnManager()
	conn, ctx := dial(t, NewHandler(echoTutor{}, conns, Options{IsDev: true}))

	// A round trip guarantees the server side has registered.
	roundTrip(t, ctx, conn, `{"type":"ping"}`)
	assert.Equal(t, 1, conns.Count())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return conns.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
