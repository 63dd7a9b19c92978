package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/framefolio/billing/pkg/config"
	"github.com/framefolio/billing/pkg/logctx"
)

const snapshotRedisKey = "billing:exchange_rates"

// RateSnapshot is a cached USD-based rate table. Rates[code] is the amount of
// that currency one USD buys.
type RateSnapshot struct {
	Rates     map[string]float64 `json:"rates"`
	Source    string             `json:"source"`
	FetchedAt time.Time          `json:"fetched_at"`
}

type Service struct {
	cfg  *config.Config
	log  *zap.SugaredLogger
	rdb  *redis.Client
	http *http.Client

	mu       sync.RWMutex
	snapshot *RateSnapshot
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, rdb *redis.Client) *Service {
	s := &Service{
		cfg:  cfg,
		log:  log,
		rdb:  rdb,
		http: &http.Client{Timeout: 10 * time.Second},
	}
	s.warmStart(context.Background())
	return s
}

// warmStart restores the last persisted snapshot so a restart does not begin
// in degraded mode.
func (s *Service) warmStart(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	raw, err := s.rdb.Get(ctx, snapshotRedisKey).Bytes()
	if err != nil {
		return
	}
	var snap RateSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil || len(snap.Rates) == 0 {
		return
	}
	s.mu.Lock()
	s.snapshot = &snap
	s.mu.Unlock()
	s.log.Infow("exchange rates warm-started", "source", snap.Source, "fetched_at", snap.FetchedAt)
}

// Convert converts an amount between currencies, both sides expressed in the
// smallest unit of their currency. Pure numeric given a resolved rate table;
// may trigger a rate refresh when the cached snapshot is stale.
func (s *Service) Convert(ctx context.Context, amount int64, from, to string) (int64, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	rateFrom := s.rateFor(ctx, from)
	rateTo := s.rateFor(ctx, to)
	if rateFrom <= 0 || rateTo <= 0 {
		return 0, fmt.Errorf("unresolvable rate: %s -> %s", from, to)
	}

	major := FromSmallestUnit(amount, from)
	usd := major / rateFrom
	return ToSmallestUnit(usd*rateTo, to), nil
}

// rateFor resolves one currency's USD-based rate through the fallback chain:
// cached snapshot (refreshed when stale) -> static fallback rates -> inverted
// reverse rate -> 1.0 with a warning.
func (s *Service) rateFor(ctx context.Context, code string) float64 {
	if code == "USD" {
		return 1.0
	}

	snap := s.currentSnapshot()
	if snap == nil || time.Since(snap.FetchedAt) > s.cfg.Currency.CacheTTL {
		if err := s.Refresh(ctx); err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("exchange rate refresh failed, falling back", "error", err.Error())
		}
		snap = s.currentSnapshot()
	}

	if snap != nil {
		if r, ok := snap.Rates[code]; ok && r > 0 {
			return r
		}
	}
	if r, ok := s.cfg.Currency.FallbackRates[code]; ok && r > 0 {
		return r
	}
	if rev, ok := s.cfg.Currency.ReverseRates[code]; ok && rev > 0 {
		return 1 / rev
	}
	logctx.FromCtx(ctx, s.log).Warnw("no exchange rate resolved, defaulting to 1.0", "currency", code)
	return 1.0
}

func (s *Service) currentSnapshot() *RateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Refresh fetches a fresh USD-based rate table, primary source first, then
// secondary. On success the snapshot is swapped and persisted to redis; on
// total failure the previous snapshot stays in place.
func (s *Service) Refresh(ctx context.Context) error {
	var lastErr error
	for _, src := range []string{s.cfg.Currency.PrimaryURL, s.cfg.Currency.SecondaryURL} {
		if src == "" {
			continue
		}
		rates, err := s.fetchRates(ctx, src)
		if err != nil {
			lastErr = err
			continue
		}
		snap := &RateSnapshot{Rates: rates, Source: src, FetchedAt: time.Now()}
		s.mu.Lock()
		s.snapshot = snap
		s.mu.Unlock()
		s.persist(ctx, snap)
		s.log.Infow("exchange rates refreshed", "source", src, "currencies", len(rates))
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no rate source configured")
	}
	return lastErr
}

func (s *Service) fetchRates(ctx context.Context, url string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate source unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate source returned %d", resp.StatusCode)
	}

	// Both supported sources ship USD-based tables, under "rates" or
	// "conversion_rates" depending on the API generation.
	var body struct {
		Rates           map[string]float64 `json:"rates"`
		ConversionRates map[string]float64 `json:"conversion_rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rate table: %w", err)
	}
	rates := body.Rates
	if len(rates) == 0 {
		rates = body.ConversionRates
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("rate table empty")
	}
	return rates, nil
}

func (s *Service) persist(ctx context.Context, snap *RateSnapshot) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	// keep well past the TTL so a restart after a source outage still warms
	if err := s.rdb.Set(ctx, snapshotRedisKey, raw, 7*24*time.Hour).Err(); err != nil {
		s.log.Warnw("failed to persist rate snapshot", "error", err.Error())
	}
}

// currencyDecimals lists ISO 4217 minor-unit exceptions; everything else uses 2.
var currencyDecimals = map[string]int{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"MGA": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// Decimals returns the number of minor-unit digits for a currency code.
func Decimals(code string) int {
	if d, ok := currencyDecimals[strings.ToUpper(code)]; ok {
		return d
	}
	return 2
}

// ToSmallestUnit converts a major-unit amount to the integer smallest unit,
// rounding half away from zero.
func ToSmallestUnit(amount float64, code string) int64 {
	factor := math.Pow10(Decimals(code))
	return int64(math.Round(amount * factor))
}

// FromSmallestUnit converts an integer smallest-unit amount to major units.
func FromSmallestUnit(amount int64, code string) float64 {
	factor := math.Pow10(Decimals(code))
	return float64(amount) / factor
}

// Format renders a smallest-unit amount as "12.34 USD".
func Format(amount int64, code string) string {
	code = strings.ToUpper(code)
	d := Decimals(code)
	return fmt.Sprintf("%.*f %s", d, FromSmallestUnit(amount, code), code)
}
