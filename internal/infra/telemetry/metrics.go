package telemetry

import (
	"time"

	"portald/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveRefresh(_ time.Duration, _, _ int, _ error) {}

func (n *NoopMetrics) ObservePortalRefreshFailure(_ string) {}

func (n *NoopMetrics) ObserveToolCall(_ domain.CallOutcome, _ time.Duration) {}

func (n *NoopMetrics) SetSnapshotTools(_ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
