package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shop-orders/internal/domain/coupon"
	"github.com/xenking/shop-orders/internal/storage/postgres"
)

const bloomFPR = 0.001

type options struct {
	dataDir     string
	pattern     string
	databaseURL string
	batchSize   int
	dryRun      bool
}

// fileResult holds the coupons parsed from one file.
type fileResult struct {
	coupons []coupon.Coupon
	bad     []lineError
}

func main() {
	var opts options

	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing gzip-compressed coupon CSV files")
	flag.StringVar(&opts.pattern, "pattern", "*.csv.gz", "glob of coupon files inside data-dir")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.batchSize, "batch-size", 500, "rows per INSERT statement")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "parse and validate without writing")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" && !opts.dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, opts.pattern))
	if err != nil {
		return errors.Wrap(err, "list coupon files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s in %s", opts.pattern, opts.dataDir)
	}
	sort.Strings(files)

	slog.Info("parsing coupon files", slog.Int("files", len(files)))

	results, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse files")
	}

	var all []coupon.Coupon
	for i, r := range results {
		for _, le := range r.bad {
			slog.Warn("skipping row", slog.String("error", le.Error()))
		}
		slog.Info("file parsed",
			slog.String("file", files[i]),
			slog.Int("coupons", len(r.coupons)),
			slog.Int("rejected", len(r.bad)),
		)
		all = append(all, r.coupons...)
	}

	kept, dropped := dedupe(all, bloomFPR)
	if len(dropped) > 0 {
		slog.Warn("duplicate offer codes dropped", slog.Int("count", len(dropped)), slog.Any("codes", dropped))
	}

	slog.Info("coupons ready", slog.Int("count", len(kept)))
	if opts.dryRun || len(kept) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL, 2)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeCoupons(ctx, postgres.NewCouponRepository(pool), kept, opts.batchSize); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}

	return nil
}

// parseFiles parses files concurrently; results keep the order of files.
func parseFiles(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := parseGzFile(f)
			if err != nil {
				return errors.Wrapf(err, "parse %s", f)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func parseGzFile(path string) (fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	coupons, bad, err := parseFile(filepath.Base(path), gz)
	if err != nil {
		return fileResult{}, err
	}
	return fileResult{coupons: coupons, bad: bad}, nil
}

// writeCoupons inserts coupons in batches. Codes already present are skipped.
func writeCoupons(ctx context.Context, repo *postgres.CouponRepository, coupons []coupon.Coupon, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	slog.Info("writing coupons to database", slog.Int("count", len(coupons)))

	var inserted int64
	for start := 0; start < len(coupons); start += batchSize {
		end := min(start+batchSize, len(coupons))
		n, err := repo.InsertCoupons(ctx, coupons[start:end])
		if err != nil {
			return errors.Wrapf(err, "insert batch at %d", start)
		}
		inserted += n
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(coupons)))
	}

	slog.Info("coupons inserted",
		slog.Int64("inserted", inserted),
		slog.Int64("existing", int64(len(coupons))-inserted),
	)
	return nil
}
