package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// GenerateMethod is the full gRPC method name of the remote generation service.
const GenerateMethod = "/tutor.v1.GenerationService/Generate"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errRemoteGeneration         = errors.New("remote generation returned error")
)

// GRPCConfig holds configuration for the remote generation client.
type GRPCConfig struct {
	Address          string
	Model            string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCConfig returns default configuration for addr.
func DefaultGRPCConfig(addr string) GRPCConfig {
	return GRPCConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPC calls a remote generation service. Requests and replies are
// google.protobuf.Struct messages, so no generated stubs are needed.
type GRPC struct {
	conn   *grpc.ClientConn
	addr   string
	model  string
	logger *slog.Logger
}

// NewGRPC creates a client for the remote generation service. The connection
// is attempted up front; if the service is not ready yet the client is still
// returned and gRPC keeps reconnecting in the background.
func NewGRPC(cfg GRPCConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GRPC, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, errors.New("generation service address is required")
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create generation client for %s: %w", cfg.Address, err)
	}

	if cfg.ConnectTimeout > 0 {
		connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
		defer cancel()
		if err := waitForReady(connectCtx, conn); err != nil {
			logger.Warn("generation service not ready, replies will use fallback until it is",
				"address", cfg.Address, "error", err)
		} else {
			logger.Info("connected to generation service", "address", cfg.Address)
		}
	}

	return &GRPC{conn: conn, addr: cfg.Address, model: cfg.Model, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Name implements Generator.
func (c *GRPC) Name() string { return "grpc:" + c.addr }

// Close closes the connection.
func (c *GRPC) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Generate implements Generator.
func (c *GRPC) Generate(ctx context.Context, spec PromptSpec) (string, error) {
	if spec.Model == "" {
		spec.Model = c.model
	}
	req, err := encodePromptSpec(spec)
	if err != nil {
		return "", err
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, GenerateMethod, req, resp); err != nil {
		return "", fmt.Errorf("remote generate: %w", err)
	}

	fields := resp.GetFields()
	if msg := fields["error"].GetStringValue(); msg != "" {
		return "", fmt.Errorf("%w: %s", errRemoteGeneration, msg)
	}
	text := fields["text"].GetStringValue()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func encodePromptSpec(spec PromptSpec) (*structpb.Struct, error) {
	history := make([]any, 0, len(spec.History))
	for _, m := range spec.History {
		history = append(history, map[string]any{"role": string(m.Role), "text": m.Text})
	}
	req, err := structpb.NewStruct(map[string]any{
		"model":             spec.Model,
		"systemInstruction": spec.SystemInstruction,
		"history":           history,
		"prompt":            spec.Prompt,
		"temperature":       float64(spec.Temperature),
		"maxTokens":         float64(spec.MaxTokens),
		"json":              spec.JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}
	return req, nil
}

func decodePromptSpec(s *structpb.Struct) PromptSpec {
	f := s.GetFields()
	spec := PromptSpec{
		Model:             f["model"].GetStringValue(),
		SystemInstruction: f["systemInstruction"].GetStringValue(),
		Prompt:            f["prompt"].GetStringValue(),
		Temperature:       float32(f["temperature"].GetNumberValue()),
		MaxTokens:         int32(f["maxTokens"].GetNumberValue()),
		JSON:              f["json"].GetBoolValue(),
	}
	for _, v := range f["history"].GetListValue().GetValues() {
		m := v.GetStructValue().GetFields()
		spec.History = append(spec.History, Message{
			Role: Role(m["role"].GetStringValue()),
			Text: m["text"].GetStringValue(),
		})
	}
	return spec
}

// RegisterGenerationService exposes gen on s under GenerateMethod. It lets
// one process serve generation to others over the same wire format the
// GRPC client speaks.
func RegisterGenerationService(s grpc.ServiceRegistrar, gen Generator) {
	s.RegisterService(&generationServiceDesc, gen)
}

var generationServiceDesc = grpc.ServiceDesc{
	ServiceName: "tutor.v1.GenerationService",
	HandlerType: (*Generator)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Generate",
		Handler:    generateHandler,
	}},
	Metadata: "tutor/v1/generation.proto",
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		gen := srv.(Generator)
		text, err := gen.Generate(ctx, decodePromptSpec(req.(*structpb.Struct)))
		if err != nil {
			return structpb.NewStruct(map[string]any{"error": err.Error()})
		}
		return structpb.NewStruct(map[string]any{"text": text})
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GenerateMethod}
	return interceptor(ctx, in, info, call)
}
