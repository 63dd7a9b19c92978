package records

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/framefolio/billing/internal/models"
	"github.com/framefolio/billing/pkg/types"
)

// ScanRequest is the shared shape of the admin list pages: filters,
// offset pagination, and a sort column.
type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanPaymentsResponse struct {
	Items []*models.PaymentRecord `json:"items"`
	Total int64                   `json:"total"`
}

type ScanWebhookEventsResponse struct {
	Items []*models.ProcessedWebhookEvent `json:"items"`
	Total int64                           `json:"total"`
}

// filtersAnd joins the filters into one AND expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// Service backs the admin list pages over payment records and the
// idempotency ledger.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// ScanPayments implements the paginated admin listing over settled payments.
func (s *Service) ScanPayments(ctx context.Context, req *ScanRequest) (*ScanPaymentsResponse, error) {
	var rows []*models.PaymentRecord
	total, err := s.scan(ctx, &models.PaymentRecord{}, req, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return &ScanPaymentsResponse{Items: rows, Total: total}, nil
}

// ScanWebhookEvents lists ledger entries, the primary debugging surface when
// a provider claims an event was delivered and we disagree.
func (s *Service) ScanWebhookEvents(ctx context.Context, req *ScanRequest) (*ScanWebhookEventsResponse, error) {
	var rows []*models.ProcessedWebhookEvent
	total, err := s.scan(ctx, &models.ProcessedWebhookEvent{}, req, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	return &ScanWebhookEventsResponse{Items: rows, Total: total}, nil
}

func (s *Service) scan(ctx context.Context, model any, req *ScanRequest, out any) (int64, error) {
	if req == nil {
		return 0, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(model)
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return 0, err
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(out).Error; err != nil {
		return 0, err
	}
	return total, nil
}
