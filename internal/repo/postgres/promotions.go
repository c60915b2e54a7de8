package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

type PromotionStore struct {
	db DB
}

func NewPromotionStore(db DB) *PromotionStore {
	if db == nil {
		return nil
	}
	return &PromotionStore{db: db}
}

func (s *PromotionStore) GetBinding(ctx context.Context, service string) (domain.Promotion, error) {
	if s == nil || s.db == nil {
		return domain.Promotion{}, fmt.Errorf("promotion store not initialized")
	}
	service = strings.TrimSpace(service)
	if service == "" {
		return domain.Promotion{}, fmt.Errorf("service is required")
	}

	var (
		promotion domain.Promotion
		previous  sql.NullString
		updatedBy sql.NullString
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT service, run_id, previous_run_id, updated_at, updated_by
		 FROM promotions
		 WHERE service = $1`,
		service,
	).Scan(&promotion.Service, &promotion.RunID, &previous, &promotion.UpdatedAt, &updatedBy)
	if err != nil {
		return domain.Promotion{}, handleNotFound(err)
	}
	promotion.PreviousRunID = previous.String
	promotion.UpdatedBy = updatedBy.String
	return promotion, nil
}

func (s *PromotionStore) PutBinding(ctx context.Context, promotion domain.Promotion) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("promotion store not initialized")
	}
	if err := promotion.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO promotions (service, run_id, previous_run_id, updated_at, updated_by)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (service) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			previous_run_id = EXCLUDED.previous_run_id,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by`,
		strings.TrimSpace(promotion.Service),
		strings.TrimSpace(promotion.RunID),
		nullIfEmpty(promotion.PreviousRunID),
		promotion.UpdatedAt.UTC(),
		nullIfEmpty(promotion.UpdatedBy),
	)
	if err != nil {
		return fmt.Errorf("upsert promotion: %w", err)
	}
	return nil
}
