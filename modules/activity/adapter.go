package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// StatsPort reads activity statistics.
type StatsPort interface {
	GetStats(ctx context.Context) (*Stats, error)
}

// StatsAdapter implements StatsPort using the service container.
type StatsAdapter struct {
	container mono.ServiceContainer
}

// NewStatsAdapter creates a new StatsAdapter.
func NewStatsAdapter(container mono.ServiceContainer) StatsPort {
	if container == nil {
		panic("activity: ServiceContainer is nil")
	}
	return &StatsAdapter{container: container}
}

func (a *StatsAdapter) GetStats(ctx context.Context) (*Stats, error) {
	req := GetStatsRequest{}
	var resp GetStatsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetStats,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &resp.Stats, nil
}
