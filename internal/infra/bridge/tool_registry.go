package bridge

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"portald/internal/domain"
)

type toolRegistry struct {
	server     *mcp.Server
	handler    func(name string) mcp.ToolHandler
	logger     *zap.Logger
	mu         sync.Mutex
	etag       string
	registered map[string]struct{}
}

func newToolRegistry(server *mcp.Server, handler func(name string) mcp.ToolHandler, logger *zap.Logger) *toolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &toolRegistry{
		server:     server,
		handler:    handler,
		logger:     logger.Named("tool_registry"),
		registered: make(map[string]struct{}),
	}
}

// ApplySnapshot reconciles the MCP server's registered tools with a registry
// snapshot. Unchanged snapshots short-circuit on the ETag.
func (r *toolRegistry) ApplySnapshot(snapshot *domain.Snapshot) {
	if snapshot == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if snapshot.ETag != "" && snapshot.ETag == r.etag {
		return
	}

	next := make(map[string]struct{})
	for _, descriptor := range snapshot.Tools {
		if descriptor.Name == "" {
			continue
		}
		schema := descriptor.InputSchema
		if schema == nil {
			schema = domain.EmptyObjectSchema()
		}
		if !isObjectSchema(schema) {
			r.logger.Warn("skip tool with non-object input schema", zap.String("tool", descriptor.Name))
			continue
		}
		tool := &mcp.Tool{
			Name:        descriptor.Name,
			Description: descriptor.Description,
			InputSchema: schema,
		}
		r.server.AddTool(tool, r.handler(descriptor.Name))
		next[descriptor.Name] = struct{}{}
	}

	var remove []string
	for name := range r.registered {
		if _, ok := next[name]; !ok {
			remove = append(remove, name)
		}
	}
	if len(remove) > 0 {
		r.server.RemoveTools(remove...)
	}

	r.registered = next
	r.etag = snapshot.ETag
}

func isObjectSchema(schema any) bool {
	if schema == nil {
		return false
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return false
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	if typ, ok := obj["type"]; ok {
		if val, ok := typ.(string); ok {
			return strings.EqualFold(val, "object")
		}
	}
	return false
}
