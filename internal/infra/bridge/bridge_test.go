package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"portald/internal/domain"
	"portald/internal/infra/dispatch"
	"portald/internal/infra/registry"
	"portald/internal/infra/schemafetch"
)

type fakePaymentClient struct {
	mu      sync.Mutex
	portals map[string]domain.Portal
	callErr error
	result  json.RawMessage
	calls   []string
}

func (f *fakePaymentClient) Address(context.Context) (string, error) {
	return "7pWa11etAddre55", nil
}

func (f *fakePaymentClient) Balance(context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}

func (f *fakePaymentClient) Portal(_ context.Context, id string) (domain.Portal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	portal, ok := f.portals[id]
	if !ok {
		return domain.Portal{}, fmt.Errorf("%w: %s", domain.ErrPortalUnreachable, id)
	}
	return portal, nil
}

func (f *fakePaymentClient) CallPortal(_ context.Context, id string, _ map[string]any, operation string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id+"/"+operation)
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakePaymentClient) setCallError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callErr = err
}

type fakeFetcher struct {
	docs map[string]*schemafetch.Document
}

func (f *fakeFetcher) Fetch(_ context.Context, baseURL string) (*schemafetch.Document, error) {
	doc, ok := f.docs[baseURL]
	if !ok {
		return nil, domain.ErrNoDescription
	}
	return doc, nil
}

const weatherDescription = `{
	"paths": {
		"/forecast": {
			"post": {
				"operationId": "get_forecast",
				"summary": "Fetch a forecast",
				"requestBody": {
					"content": {
						"application/json": {
							"schema": {
								"type": "object",
								"properties": {
									"city": {"type": "string"},
									"days": {"type": "integer"}
								},
								"required": ["city"]
							}
						}
					}
				}
			}
		}
	}
}`

func newTestBridge(t *testing.T, whitelist string, payment *fakePaymentClient, fetcher *fakeFetcher) *Bridge {
	t.Helper()
	reg := registry.New(registry.Config{Whitelist: whitelist}, payment, fetcher, nil, nil, zap.NewNop())
	dispatcher := dispatch.New(payment, zap.NewNop())
	return New(Config{Version: "test"}, reg, dispatcher, nil, zap.NewNop())
}

func connectClient(t *testing.T, ctx context.Context, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ct, st := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	return session
}

func documentOf(t *testing.T, raw string) *schemafetch.Document {
	t.Helper()
	var doc schemafetch.Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func weatherBridge(t *testing.T) (*Bridge, *fakePaymentClient) {
	t.Helper()
	payment := &fakePaymentClient{portals: map[string]domain.Portal{
		"p-weather": {
			ID:    "p-weather",
			Title: "Weather API",
			URL:   "https://weather.example",
		},
	}}
	fetcher := &fakeFetcher{docs: map[string]*schemafetch.Document{
		"https://weather.example": documentOf(t, weatherDescription),
	}}
	return newTestBridge(t, "p-weather", payment, fetcher), payment
}

func TestBridge_ListsNormalizedTools(t *testing.T) {
	ctx := context.Background()
	b, _ := weatherBridge(t)
	b.start(ctx)

	session := connectClient(t, ctx, b.server)
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	require.Equal(t, "get_forecast", res.Tools[0].Name)
	require.Equal(t, "Fetch a forecast", res.Tools[0].Description)
}

func TestBridge_CallSucceeds(t *testing.T) {
	ctx := context.Background()
	b, payment := weatherBridge(t)
	payment.result = json.RawMessage(`{"forecast":"sunny"}`)
	b.start(ctx)

	session := connectClient(t, ctx, b.server)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_forecast",
		Arguments: map[string]any{"city": "Lisbon"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Contains(t, resultText(t, res), "sunny")
	require.Equal(t, []string{"p-weather/get_forecast"}, payment.calls)
}

func TestBridge_InvalidArgumentsListEveryViolation(t *testing.T) {
	ctx := context.Background()
	b, payment := weatherBridge(t)
	b.start(ctx)

	session := connectClient(t, ctx, b.server)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_forecast",
		Arguments: map[string]any{"days": "soon"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)

	text := resultText(t, res)
	require.Contains(t, text, string(domain.CodeInvalidArgument))
	require.Contains(t, text, "city")
	require.Contains(t, text, "days")
	require.Empty(t, payment.calls, "invalid calls must not reach the portal")
}

func TestBridge_PaymentFailureGetsFundingGuidance(t *testing.T) {
	ctx := context.Background()
	b, payment := weatherBridge(t)
	payment.setCallError(errors.New("Insufficient SOL for fee: need 5000 more lamports"))
	b.start(ctx)

	session := connectClient(t, ctx, b.server)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_forecast",
		Arguments: map[string]any{"city": "Lisbon"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)

	text := resultText(t, res)
	require.Contains(t, text, string(domain.CodePaymentRequired))
	require.Contains(t, text, domain.GasAssetSymbol)
	require.Contains(t, text, "7pWa11etAddre55")
	require.NotContains(t, text, "lamports")
}

func TestBridge_SynthesizedToolForPortalWithoutDescription(t *testing.T) {
	ctx := context.Background()
	payment := &fakePaymentClient{portals: map[string]domain.Portal{
		"9f3a1b2c": {
			ID:          "9f3a1b2c",
			Title:       "Weather API",
			Description: "pay-per-call forecasts",
			URL:         "https://silent.example",
		},
	}}
	b := newTestBridge(t, "9f3a1b2c", payment, &fakeFetcher{})
	b.start(ctx)

	session := connectClient(t, ctx, b.server)
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	require.Equal(t, "portal_weather_api_9f3a", res.Tools[0].Name)

	call, err := session.CallTool(ctx, &mcp.CallToolParams{Name: res.Tools[0].Name})
	require.NoError(t, err)
	require.False(t, call.IsError)
	require.Equal(t, []string{"9f3a1b2c/"}, payment.calls)
}

func TestBridge_EmptyWhitelistFailsCallsNotTransport(t *testing.T) {
	ctx := context.Background()
	b := newTestBridge(t, "", &fakePaymentClient{}, &fakeFetcher{})
	b.start(ctx)

	session := connectClient(t, ctx, b.server)
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Empty(t, res.Tools)
}

func TestToolRegistry_ApplySnapshotDiffsByETag(t *testing.T) {
	ctx := context.Background()
	server := mcp.NewServer(&mcp.Implementation{Name: "portald", Version: "test"}, &mcp.ServerOptions{HasTools: true})

	var handled []string
	reg := newToolRegistry(server, func(name string) mcp.ToolHandler {
		return func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			handled = append(handled, name)
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: name}}}, nil
		}
	}, zap.NewNop())

	first := snapshotWithTools(t, "v1", "alpha", "beta")
	reg.ApplySnapshot(first)

	session := connectClient(t, ctx, server)
	defer session.Close()

	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 2)

	// Same etag is a no-op even with different contents.
	reg.ApplySnapshot(snapshotWithTools(t, "v1", "alpha"))
	res, err = session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 2)

	// New etag removes what dropped out.
	reg.ApplySnapshot(snapshotWithTools(t, "v2", "alpha"))
	res, err = session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	require.Equal(t, "alpha", res.Tools[0].Name)

	_, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "alpha"})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha"}, handled)
}

func snapshotWithTools(t *testing.T, etag string, names ...string) *domain.Snapshot {
	t.Helper()
	tools := make([]domain.ToolDescriptor, 0, len(names))
	targets := make(map[string]domain.ToolTarget, len(names))
	for _, name := range names {
		tools = append(tools, domain.ToolDescriptor{
			Name:        name,
			Description: name,
			InputSchema: domain.EmptyObjectSchema(),
			PortalID:    "p1",
		})
		targets[name] = domain.ToolTarget{PortalID: "p1"}
	}
	return domain.NewSnapshot(etag, nil, tools, targets)
}
