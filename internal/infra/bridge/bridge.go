package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"portald/internal/domain"
	"portald/internal/infra/dispatch"
	"portald/internal/infra/registry"
	"portald/internal/infra/telemetry"
	"portald/internal/infra/validator"
)

// Bridge owns the MCP server surface. It registers the tools of the current
// registry snapshot and routes every tool call through resolution, argument
// validation, and dispatch. Failures never escape as protocol errors; they
// come back as tool results with IsError set.
type Bridge struct {
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	metrics    domain.Metrics
	logger     *zap.Logger

	server *mcp.Server
	tools  *toolRegistry
	resync time.Duration
}

type Config struct {
	Version string
	Resync  time.Duration
}

func New(cfg Config, reg *registry.Registry, dispatcher *dispatch.Dispatcher, metrics domain.Metrics, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if cfg.Resync <= 0 {
		cfg.Resync = time.Duration(domain.DefaultResyncSeconds) * time.Second
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	b := &Bridge{
		registry:   reg,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.Named("bridge"),
		resync:     cfg.Resync,
	}

	b.server = mcp.NewServer(&mcp.Implementation{
		Name:    "portald",
		Title:   "Portals Bridge",
		Version: version,
	}, &mcp.ServerOptions{HasTools: true})
	b.tools = newToolRegistry(b.server, b.handler, logger)
	return b
}

// Run serves the bridge over stdio until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	b.start(ctx)
	return b.server.Run(ctx, &mcp.StdioTransport{})
}

// RunStreamableHTTP serves the bridge over the streamable HTTP transport at
// the given listen address and path until ctx is canceled.
func (b *Bridge) RunStreamableHTTP(ctx context.Context, addr, path string) error {
	b.start(ctx)

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return b.server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	b.logger.Info("streamable http transport listening", zap.String("addr", addr), zap.String("path", path))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// start performs the initial portal sync and launches the periodic resync
// loop. A failed initial refresh is logged and served empty so a later
// refresh or tool call can recover.
func (b *Bridge) start(ctx context.Context) {
	snapshot, err := b.registry.Refresh(ctx)
	if err != nil {
		b.logger.Warn("initial portal sync failed", zap.Error(err))
	}
	if snapshot != nil {
		b.tools.ApplySnapshot(snapshot)
	}
	go b.resyncLoop(ctx)
}

func (b *Bridge) resyncLoop(ctx context.Context) {
	ticker := time.NewTicker(b.resync)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := b.registry.Refresh(ctx)
			if err != nil {
				b.logger.Warn("portal resync failed", zap.Error(err))
				continue
			}
			b.tools.ApplySnapshot(snapshot)
		}
	}
}

// handler builds the call handler for a registered tool name. Resolution runs
// against a fresh snapshot so renames and removals between syncs surface as
// tool-not-found instead of stale dispatches.
func (b *Bridge) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = telemetry.WithRequestID(ctx, "")
		requestID, _ := telemetry.RequestIDFromContext(ctx)
		start := time.Now()
		logger := b.logger.With(
			zap.String("tool", name),
			zap.String("request_id", requestID),
		)

		snapshot, err := b.registry.Refresh(ctx)
		if err != nil {
			b.metrics.ObserveToolCall(domain.CallOutcomeError, time.Since(start))
			logger.Warn("portal sync failed during call", zap.Error(err))
			return errorResult(err), nil
		}
		b.tools.ApplySnapshot(snapshot)

		target, ok := snapshot.Resolve(name)
		if !ok {
			b.metrics.ObserveToolCall(domain.CallOutcomeNotFound, time.Since(start))
			return errorResult(domain.E(domain.CodeNotFound, "bridge.CallTool",
				fmt.Sprintf("tool %q is not available", name), domain.ErrToolNotFound)), nil
		}
		descriptor, _ := snapshot.Descriptor(name)

		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				b.metrics.ObserveToolCall(domain.CallOutcomeInvalidArgument, time.Since(start))
				return errorResult(domain.E(domain.CodeInvalidArgument, "bridge.CallTool",
					"arguments must be a JSON object", err)), nil
			}
		}

		if err := validator.ValidateArguments(descriptor.InputSchema, args); err != nil {
			b.metrics.ObserveToolCall(domain.CallOutcomeInvalidArgument, time.Since(start))
			logger.Debug("argument validation rejected call", zap.Error(err))
			return errorResult(err), nil
		}

		result, err := b.dispatcher.Dispatch(ctx, target, args)
		if err != nil {
			b.metrics.ObserveToolCall(outcomeForError(err), time.Since(start))
			logger.Warn("portal call failed", zap.String("portal", target.PortalID), zap.Error(err))
			return errorResult(err), nil
		}

		b.metrics.ObserveToolCall(domain.CallOutcomeSuccess, time.Since(start))
		logger.Debug("portal call completed",
			zap.String("portal", target.PortalID),
			zap.Duration("duration", time.Since(start)))
		return successResult(result), nil
	}
}

func outcomeForError(err error) domain.CallOutcome {
	code, ok := domain.CodeFrom(err)
	if !ok {
		return domain.CallOutcomeError
	}
	switch code {
	case domain.CodePaymentRequired:
		return domain.CallOutcomePaymentRequired
	case domain.CodeInvalidArgument:
		return domain.CallOutcomeInvalidArgument
	case domain.CodeNotFound:
		return domain.CallOutcomeNotFound
	default:
		return domain.CallOutcomeError
	}
}

func errorResult(err error) *mcp.CallToolResult {
	text := err.Error()
	var derr *domain.Error
	if errors.As(err, &derr) && len(derr.Violations) > 0 {
		text = text + "\n- " + strings.Join(derr.Violations, "\n- ")
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func successResult(raw json.RawMessage) *mcp.CallToolResult {
	text := string(raw)
	if text == "" {
		text = "{}"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
