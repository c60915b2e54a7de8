package domain

import (
	"errors"
	"strings"
	"time"
)

// Promotion binds a service name to the run currently serving it. The
// previous binding is retained so a rollback can restore it. There is one
// record per service; only the registry mutates it.
type Promotion struct {
	Service       string    `json:"service"`
	RunID         string    `json:"run_id"`
	PreviousRunID string    `json:"previous_run_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	UpdatedBy     string    `json:"updated_by,omitempty"`
}

func (p Promotion) Validate() error {
	if strings.TrimSpace(p.Service) == "" {
		return errors.New("service is required")
	}
	if strings.TrimSpace(p.RunID) == "" {
		return errors.New("run id is required")
	}
	if p.UpdatedAt.IsZero() {
		return errors.New("updated_at is required")
	}
	return nil
}
