package rankctl

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/okian/reputation/internal/domain/types"
	"github.com/okian/reputation/pkg/logger"
)

// SeedConfig shapes a batch of random evaluations.
type SeedConfig struct {
	Parties     int
	Evaluations int
	Workers     int
	// NegativeRatio is the chance that an evaluation carries negative aspects.
	NegativeRatio float64
	// MaxAspects bounds how many aspects of one polarity an evaluation picks.
	MaxAspects int
	RandSeed   uint64
}

// SeedReport counts submission outcomes.
type SeedReport struct {
	Submitted  int           `json:"submitted"`
	Applied    int           `json:"applied"`
	Duplicates int           `json:"duplicates"`
	Rejected   int           `json:"rejected"`
	Failed     int           `json:"failed"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

func (c SeedConfig) validate() error {
	switch {
	case c.Parties < 2:
		return errors.New("parties must be at least 2")
	case c.Evaluations < 1:
		return errors.New("evaluations must be positive")
	case c.Workers < 1:
		return errors.New("workers must be positive")
	case c.NegativeRatio < 0 || c.NegativeRatio > 1:
		return errors.New("negative ratio must be within [0,1]")
	case c.MaxAspects < 1:
		return errors.New("max aspects must be positive")
	}
	return nil
}

// Plan builds cfg.Evaluations random submissions between cfg.Parties
// parties, drawing aspects from catalog. Equal seeds give equal plans apart
// from transaction ids.
func Plan(cfg SeedConfig, catalog types.CatalogView) ([]SubmitRequest, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(catalog.Positive) == 0 || len(catalog.Negative) == 0 {
		return nil, errors.New("catalog has no aspects")
	}

	rng := rand.New(rand.NewPCG(cfg.RandSeed, cfg.RandSeed^0x9e3779b97f4a7c15))
	party := func(i int) string { return "party-" + strconv.Itoa(i) }

	out := make([]SubmitRequest, cfg.Evaluations)
	for i := range out {
		rater := rng.IntN(cfg.Parties)
		rated := rng.IntN(cfg.Parties - 1)
		if rated >= rater {
			rated++
		}
		req := SubmitRequest{
			RaterID:       party(rater),
			RatedID:       party(rated),
			TransactionID: uuid.NewString(),
			Positive:      pick(rng, catalog.Positive, 1+rng.IntN(cfg.MaxAspects)),
		}
		if rng.Float64() < cfg.NegativeRatio {
			req.Negative = pick(rng, catalog.Negative, 1+rng.IntN(cfg.MaxAspects))
		}
		out[i] = req
	}
	return out, nil
}

func pick(rng *rand.Rand, entries []types.CatalogEntry, n int) []string {
	n = min(n, len(entries))
	codes := make([]string, 0, n)
	for _, idx := range rng.Perm(len(entries))[:n] {
		codes = append(codes, entries[idx].Code)
	}
	return codes
}

// Seed submits a random plan concurrently and reports the outcomes. Server
// refusals are counted; transport failures are returned.
func Seed(ctx context.Context, client *Client, cfg SeedConfig) (SeedReport, error) {
	log := logger.Get().Named("seed")
	start := time.Now()

	catalog, err := client.Catalog(ctx)
	if err != nil {
		return SeedReport{}, fmt.Errorf("fetch catalog: %w", err)
	}
	plan, err := Plan(cfg, catalog)
	if err != nil {
		return SeedReport{}, err
	}

	log.Info(ctx, "seeding evaluations",
		logger.Int("evaluations", len(plan)),
		logger.Int("parties", cfg.Parties),
		logger.Int("workers", cfg.Workers),
	)

	var applied, duplicates, rejected, failed atomic.Int64
	p := pool.New().WithMaxGoroutines(cfg.Workers).WithContext(ctx)
	for _, req := range plan {
		p.Go(func(ctx context.Context) error {
			_, err := client.Submit(ctx, req)
			var apiErr *APIError
			switch {
			case err == nil:
				applied.Add(1)
			case errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
				duplicates.Add(1)
			case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
				rejected.Add(1)
			case errors.As(err, &apiErr):
				failed.Add(1)
			default:
				failed.Add(1)
				return err
			}
			return nil
		})
	}
	waitErr := p.Wait()

	rep := SeedReport{
		Submitted:  len(plan),
		Applied:    int(applied.Load()),
		Duplicates: int(duplicates.Load()),
		Rejected:   int(rejected.Load()),
		Failed:     int(failed.Load()),
		Elapsed:    time.Since(start),
	}
	log.Info(ctx, "seeding finished",
		logger.Int("applied", rep.Applied),
		logger.Int("duplicates", rep.Duplicates),
		logger.Int("rejected", rep.Rejected),
		logger.Int("failed", rep.Failed),
		logger.Duration("elapsed", rep.Elapsed),
	)
	if waitErr != nil {
		return rep, fmt.Errorf("seed: %w", waitErr)
	}
	return rep, nil
}
