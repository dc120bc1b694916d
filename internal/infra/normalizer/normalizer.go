package normalizer

import (
	"encoding/json"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"portald/internal/domain"
	"portald/internal/infra/schemafetch"
)

// httpVerbs in iteration order. Path items also carry metadata keys
// (parameters, summary, servers) which must not produce tools.
var httpVerbs = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

type operation struct {
	OperationID string       `json:"operationId"`
	Summary     string       `json:"summary"`
	Description string       `json:"description"`
	RequestBody *requestBody `json:"requestBody"`
}

type requestBody struct {
	Content map[string]mediaType `json:"content"`
}

type mediaType struct {
	Schema json.RawMessage `json:"schema"`
}

// Normalize converts a fetched API description into tool descriptors for one
// portal. A nil document, or one yielding no usable operations, produces
// exactly one synthesized fallback descriptor: every reachable whitelisted
// portal exposes at least one tool.
func Normalize(portal domain.Portal, doc *schemafetch.Document, logger *zap.Logger) []domain.ToolDescriptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("normalizer")

	byName := make(map[string]int)
	var tools []domain.ToolDescriptor

	if doc != nil {
		paths := make([]string, 0, len(doc.Paths))
		for path := range doc.Paths {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			item := doc.Paths[path]
			for _, verb := range httpVerbs {
				raw, ok := item[verb]
				if !ok {
					continue
				}
				var op operation
				if err := json.Unmarshal(raw, &op); err != nil {
					logger.Warn("skip malformed operation",
						zap.String("portal", portal.ID),
						zap.String("path", path),
						zap.String("method", verb),
						zap.Error(err),
					)
					continue
				}
				if op.OperationID == "" {
					continue
				}

				descriptor := domain.ToolDescriptor{
					Name:        op.OperationID,
					Description: describe(op, portal),
					InputSchema: bodySchema(op, portal, path, verb, logger),
					PortalID:    portal.ID,
					Operation:   op.OperationID,
				}

				// Duplicate operationId within one document: last write wins.
				if idx, exists := byName[descriptor.Name]; exists {
					logger.Warn("duplicate operationId, keeping last",
						zap.String("portal", portal.ID),
						zap.String("operation", descriptor.Name),
						zap.String("path", path),
					)
					tools[idx] = descriptor
					continue
				}
				byName[descriptor.Name] = len(tools)
				tools = append(tools, descriptor)
			}
		}
	}

	if len(tools) == 0 {
		return []domain.ToolDescriptor{synthesize(portal)}
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func describe(op operation, portal domain.Portal) string {
	if op.Summary != "" {
		return op.Summary
	}
	if op.Description != "" {
		return op.Description
	}
	return portal.Description
}

func bodySchema(op operation, portal domain.Portal, path, verb string, logger *zap.Logger) *jsonschema.Schema {
	if op.RequestBody == nil {
		return domain.EmptyObjectSchema()
	}
	media, ok := op.RequestBody.Content["application/json"]
	if !ok || len(media.Schema) == 0 {
		return domain.EmptyObjectSchema()
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(media.Schema, &schema); err != nil {
		logger.Warn("skip unparseable request body schema",
			zap.String("portal", portal.ID),
			zap.String("path", path),
			zap.String("method", verb),
			zap.Error(err),
		)
		return domain.EmptyObjectSchema()
	}
	return &schema
}

func synthesize(portal domain.Portal) domain.ToolDescriptor {
	description := portal.Description
	if description == "" {
		description = "Call the " + portal.Title + " portal"
	}
	return domain.ToolDescriptor{
		Name:        domain.GeneratedToolName(portal.Title, portal.ID),
		Description: description,
		InputSchema: domain.EmptyObjectSchema(),
		PortalID:    portal.ID,
		Synthesized: true,
	}
}
