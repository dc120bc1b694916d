package domain

import (
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Portal describes one whitelisted pay-per-use API provider, as reported by
// the payment agent's on-chain directory.
type Portal struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	URL            string `json:"url"`
	PaymentAddress string `json:"paymentAddress"`
}

// ToolDescriptor is one callable operation exposed through the bridge.
// Explicit descriptors come from a portal's published API description;
// synthesized descriptors are the single fallback generated for portals that
// publish none.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
	PortalID    string             `json:"portalId"`
	Operation   string             `json:"operation,omitempty"`
	Synthesized bool               `json:"synthesized,omitempty"`
}

// ToolTarget is the resolution result for an exposed tool name.
type ToolTarget struct {
	PortalID    string
	Operation   string
	Synthesized bool
}

// PortalSource indicates where a snapshot entry's metadata was obtained.
type PortalSource string

const (
	PortalSourceLive  PortalSource = "live"
	PortalSourceCache PortalSource = "cache"
)

// PortalEntry is one portal's resolved state inside a snapshot.
type PortalEntry struct {
	Portal    Portal           `json:"portal"`
	Tools     []ToolDescriptor `json:"tools"`
	Source    PortalSource     `json:"source"`
	FetchedAt time.Time        `json:"fetchedAt"`
}

// Snapshot is an immutable view of the registry: every reachable whitelisted
// portal with its tools, plus the name-resolution targets. Snapshots are
// replaced wholesale and never mutated after publication, so readers racing a
// refresh always observe a consistent view.
type Snapshot struct {
	ETag    string
	Portals map[string]PortalEntry
	Tools   []ToolDescriptor

	targets map[string]ToolTarget
}

// NewSnapshot builds a published snapshot. The caller guarantees that tools
// carry globally unique names and that targets covers every tool name.
func NewSnapshot(etag string, portals map[string]PortalEntry, tools []ToolDescriptor, targets map[string]ToolTarget) *Snapshot {
	return &Snapshot{
		ETag:    etag,
		Portals: portals,
		Tools:   tools,
		targets: targets,
	}
}

// Resolve maps an exposed tool name to its (portal, operation) target.
func (s *Snapshot) Resolve(name string) (ToolTarget, bool) {
	if s == nil || name == "" {
		return ToolTarget{}, false
	}
	target, ok := s.targets[name]
	return target, ok
}

// Descriptor returns the descriptor registered under an exposed name.
func (s *Snapshot) Descriptor(name string) (ToolDescriptor, bool) {
	if s == nil {
		return ToolDescriptor{}, false
	}
	for _, tool := range s.Tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return ToolDescriptor{}, false
}

// EmptyObjectSchema is the parameter schema used when an operation declares
// no request body and for synthesized fallback descriptors.
func EmptyObjectSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}
