package client

import (
	"context"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// Registry talks to the promotion registry service.
type Registry struct {
	rest
}

func NewRegistry(baseURL, token string) *Registry {
	return &Registry{rest: newREST(baseURL, token)}
}

func (c *Registry) Binding(ctx context.Context, service string) (domain.Promotion, error) {
	var binding domain.Promotion
	err := c.getJSON(ctx, "/services/"+pathEscape(service)+"/binding", &binding)
	return binding, err
}

func (c *Registry) Rollout(ctx context.Context, service, runID string) (domain.Promotion, error) {
	var binding domain.Promotion
	err := c.postJSON(ctx, "/services/"+pathEscape(service)+"/rollout", map[string]string{"run_id": runID}, &binding)
	return binding, err
}

func (c *Registry) Rollback(ctx context.Context, service string) (domain.Promotion, error) {
	var binding domain.Promotion
	err := c.postJSON(ctx, "/services/"+pathEscape(service)+"/rollback", struct{}{}, &binding)
	return binding, err
}
