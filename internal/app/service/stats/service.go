package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/framefolio/billing/internal/app/service/currency"
	"github.com/framefolio/billing/internal/models"
	"github.com/framefolio/billing/pkg/types"
)

type StatisticType string

const (
	StatisticTypeDailyPaymentCount  StatisticType = "daily_payment_count"
	StatisticTypeDailyGrossVolume   StatisticType = "daily_gross_volume"
	StatisticTypeDailyNewSubs       StatisticType = "daily_new_subscriptions"
	StatisticTypeActiveSubsByTier   StatisticType = "active_subscriptions_by_tier"
	StatisticTypeActiveSubsByStatus StatisticType = "active_subscriptions_by_status"
)

var allStatisticTypes = []StatisticType{
	StatisticTypeDailyPaymentCount,
	StatisticTypeDailyGrossVolume,
	StatisticTypeDailyNewSubs,
	StatisticTypeActiveSubsByTier,
	StatisticTypeActiveSubsByStatus,
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []StatisticType       `json:"data_items"`
}

// DataItem is one point of one statistic. Label carries the secondary
// dimension (currency code, tier, status) where the statistic has one.
type DataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
	// ValueUSD is the gross volume converted into USD cents; only set for
	// money statistics.
	ValueUSD int64 `json:"value_usd,omitempty"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]DataItem `json:"data_items"`
}

type Service struct {
	db       *gorm.DB
	currency *currency.Service
	log      *zap.SugaredLogger
}

func New(db *gorm.DB, currencySvc *currency.Service, log *zap.SugaredLogger) *Service {
	return &Service{db: db, currency: currencySvc, log: log}
}

// Query runs the requested statistics concurrently and collects them into
// one response. An empty data-item list means all of them.
func (s *Service) Query(ctx context.Context, request *StatisticRequest) (*StatisticResponse, error) {
	items := request.DataItems
	if len(items) == 0 {
		items = allStatisticTypes
	}
	items = lo.Uniq(items)

	resp := &StatisticResponse{DataItems: make(map[StatisticType][]DataItem, len(items))}
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make([]error, 0)

	for _, item := range items {
		wg.Add(1)
		go func(item StatisticType) {
			defer wg.Done()
			data, err := s.query(ctx, item, request)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", item, err))
				return
			}
			resp.DataItems[item] = data
		}(item)
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, errs[0]
	}
	return resp, nil
}

func (s *Service) query(ctx context.Context, item StatisticType, request *StatisticRequest) ([]DataItem, error) {
	switch item {
	case StatisticTypeDailyPaymentCount:
		return s.dailyPaymentCount(ctx, request)
	case StatisticTypeDailyGrossVolume:
		return s.dailyGrossVolume(ctx, request)
	case StatisticTypeDailyNewSubs:
		return s.dailyNewSubscriptions(ctx)
	case StatisticTypeActiveSubsByTier:
		return s.activeSubscriptionsBy(ctx, "tier")
	case StatisticTypeActiveSubsByStatus:
		return s.activeSubscriptionsBy(ctx, "status")
	}
	return nil, fmt.Errorf("unknown statistic type %q", item)
}

func (s *Service) dailyPaymentCount(ctx context.Context, request *StatisticRequest) ([]DataItem, error) {
	var results []DataItem
	q := s.db.WithContext(ctx).Table((models.PaymentRecord{}).TableName()).
		Select("TO_CHAR(paid_at, 'YYYY-MM-DD') as date, count(*) as value").
		Where("kind != ?", models.PaymentKindRefund).
		Group("TO_CHAR(paid_at, 'YYYY-MM-DD')").
		Order("date DESC")
	if len(request.Filters) > 0 {
		q = q.Where(clause.Where{Exprs: lo.Map(request.Filters, func(f *types.CommonFilter, _ int) clause.Expression { return f })})
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// dailyGrossVolume sums per day and currency, then normalizes each bucket
// into USD so the dashboard can stack mixed-currency revenue.
func (s *Service) dailyGrossVolume(ctx context.Context, request *StatisticRequest) ([]DataItem, error) {
	var results []DataItem
	q := s.db.WithContext(ctx).Table((models.PaymentRecord{}).TableName()).
		Select("TO_CHAR(paid_at, 'YYYY-MM-DD') as date, currency as label, sum(amount) as value").
		Group("TO_CHAR(paid_at, 'YYYY-MM-DD')").
		Group("currency").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if len(request.Filters) > 0 {
		q = q.Where(clause.Where{Exprs: lo.Map(request.Filters, func(f *types.CommonFilter, _ int) clause.Expression { return f })})
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}

	for i := range results {
		usd, err := s.currency.Convert(ctx, results[i].Value, results[i].Label, "USD")
		if err != nil {
			s.log.Warnw("gross volume USD normalization failed",
				"currency", results[i].Label, "error", err)
			continue
		}
		results[i].ValueUSD = usd
	}
	return results, nil
}

func (s *Service) dailyNewSubscriptions(ctx context.Context) ([]DataItem, error) {
	var results []DataItem
	err := s.db.WithContext(ctx).Raw(`
WITH distinct_dates AS (
    SELECT DISTINCT DATE(created_at) as date FROM subscription ORDER BY date
),
user_id_date AS (
    SELECT user_id, DATE(created_at) as date FROM subscription
)
SELECT TO_CHAR(d.date, 'YYYY-MM-DD') as date, COUNT(DISTINCT s.user_id) as value
FROM distinct_dates d
JOIN user_id_date s ON s.date = d.date
GROUP BY d.date
ORDER BY d.date DESC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) activeSubscriptionsBy(ctx context.Context, column string) ([]DataItem, error) {
	if column != "tier" && column != "status" {
		return nil, fmt.Errorf("unsupported grouping column %q", column)
	}
	var results []DataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select(column+" as label, count(*) as value").
		Where("status IN ?", []types.SubscriptionStatus{
			types.SubscriptionStatusActive,
			types.SubscriptionStatusPastDue,
			types.SubscriptionStatusGracePeriod,
		}).
		Where("current_period_end >= ?", time.Now()).
		Group(column).
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
