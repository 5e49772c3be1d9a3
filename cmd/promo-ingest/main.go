// Command promo-ingest loads campaign promotion codes exported by partner
// feeds. Feeds are large gzip-compressed code lists which overlap: a code is
// trusted only when at least two independent feeds contain it. The tool
// streams each feed twice, first into per-feed bloom filters and then against
// the other feeds' filters, so the full code set never has to fit in memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/delivergo/pricing/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 12
)

// campaignRule maps a code prefix to the promotion it unlocks. Codes with no
// matching prefix fall back to defaultRule.
type campaignRule struct {
	kind           string
	value          string
	minOrderAmount string
	maxDiscount    string
	description    string
}

var campaignRules = map[string]campaignRule{
	"TET":  {kind: "percentage", value: "25", minOrderAmount: "100000", maxDiscount: "50000", description: "Tet campaign: 25% off"},
	"SHIP": {kind: "free_delivery", value: "0", minOrderAmount: "60000", maxDiscount: "0", description: "Campaign: free delivery"},
	"SALE": {kind: "fixed", value: "30000", minOrderAmount: "150000", maxDiscount: "0", description: "Campaign: 30k off"},
}

var defaultRule = campaignRule{
	kind:           "percentage",
	value:          "10",
	minOrderAmount: "50000",
	maxDiscount:    "25000",
	description:    "Campaign code: 10% off",
}

// feedResult holds candidate codes found in one feed during pass 2, with a
// bitmask recording which feeds matched.
type feedResult struct {
	candidates map[string]uint
}

const upsertCampaignPromotionSQL = `
INSERT INTO promotions (
    id, code, description, kind, value, min_order_amount, max_discount,
    start_at, end_at, usage_limit, active, applicable_restaurant_ids
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, '{}')
ON CONFLICT (UPPER(code)) DO NOTHING`

func main() {
	var (
		dataDir     string
		databaseURL string
		numFeeds    int
		usageLimit  int
		validDays   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing campaign-feed-N.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&numFeeds, "feeds", 3, "number of campaign feed files")
	flag.IntVar(&usageLimit, "usage-limit", 1000, "usage limit per ingested promotion")
	flag.IntVar(&validDays, "valid-days", 30, "validity window in days from now")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, numFeeds, usageLimit, validDays); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, numFeeds, usageLimit, validDays int) error {
	feeds := make([]string, numFeeds)
	for i := range numFeeds {
		feeds[i] = filepath.Join(dataDir, fmt.Sprintf("campaign-feed-%d.gz", i+1))
	}
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	slog.Info("pass 1: building bloom filters", slog.Int("feeds", numFeeds))

	filters, err := buildBloomFilters(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes present in 2+ feeds")

	trusted, err := findTrustedCodes(ctx, feeds, filters)
	if err != nil {
		return errors.Wrap(err, "find trusted codes")
	}

	slog.Info("trusted codes found", slog.Int("count", len(trusted)))

	if len(trusted) == 0 {
		slog.Info("no codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writePromotions(ctx, pool, trusted, usageLimit, validDays); err != nil {
		return errors.Wrap(err, "write promotions")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFeed(ctx, path, func(code string) {
			if len(code) >= minCodeLen && len(code) <= maxCodeLen {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("feed", idx+1),
						slog.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete", slog.Int("feed", idx+1), slog.Uint64("total_codes", count))

		filters[idx] = filter
		return nil
	}
}

// findTrustedCodes re-streams each feed and checks codes against the OTHER
// feeds' bloom filters. A code is trusted when 2+ feeds carry it.
func findTrustedCodes(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]feedResult, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(findCandidatesInFeed(ctx, i, f, filters, results))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	var trusted []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			trusted = append(trusted, code)
		}
	}

	return trusted, nil
}

func findCandidatesInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []feedResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		feedBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFeed(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress", slog.Int("feed", idx+1), slog.Uint64("codes", count))
			}

			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= feedBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_codes", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = feedResult{candidates: candidates}
		return nil
	}
}

// streamGzFeed opens a gzip-compressed feed and calls fn for each line,
// uppercased and trimmed.
func streamGzFeed(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(strings.ToUpper(strings.TrimSpace(scanner.Text())))
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// ruleForCode picks the campaign rule by code prefix.
func ruleForCode(code string) campaignRule {
	for prefix, rule := range campaignRules {
		if strings.HasPrefix(code, prefix) {
			return rule
		}
	}
	return defaultRule
}

// writePromotions inserts one promotion row per trusted code. Existing codes
// are left untouched so re-runs never reset usage counters.
func writePromotions(ctx context.Context, pool *pgxpool.Pool, codes []string, usageLimit, validDays int) error {
	slog.Info("writing promotions to database", slog.Int("count", len(codes)))

	startAt := time.Now().UTC()
	endAt := startAt.AddDate(0, 0, validDays)

	for i, code := range codes {
		rule := ruleForCode(code)

		value, err := decimal.NewFromString(rule.value)
		if err != nil {
			return errors.Wrapf(err, "parse value for code %s", code)
		}
		minOrder, err := decimal.NewFromString(rule.minOrderAmount)
		if err != nil {
			return errors.Wrapf(err, "parse min order amount for code %s", code)
		}
		maxDiscount, err := decimal.NewFromString(rule.maxDiscount)
		if err != nil {
			return errors.Wrapf(err, "parse max discount for code %s", code)
		}

		if _, err := pool.Exec(ctx, upsertCampaignPromotionSQL,
			uuid.NewString(), code, rule.description, rule.kind,
			value, minOrder, maxDiscount, startAt, endAt, usageLimit,
		); err != nil {
			return errors.Wrapf(err, "insert promotion %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}

	return nil
}
