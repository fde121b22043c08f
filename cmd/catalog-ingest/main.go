// Command catalog-ingest bulk-loads vehicle listings from gzipped NDJSON
// exports into the catalog. Files are streamed concurrently; duplicate
// listings across files are dropped with a bloom filter keyed on the
// listing's natural identity, and inserts go to MongoDB in batches.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/wheelhouse/internal/domain/product"
	storagemongo "github.com/xenking/wheelhouse/internal/storage/mongo"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 100_000
)

// listingJSON is one NDJSON line of a catalog export.
type listingJSON struct {
	Name          string          `json:"name"`
	Brand         string          `json:"brand"`
	Model         string          `json:"model"`
	Year          int             `json:"year"`
	Price         decimal.Decimal `json:"price"`
	ExteriorColor string          `json:"exteriorColor"`
	InteriorColor string          `json:"interiorColor"`
	FuelType      string          `json:"fuelType"`
	Transmission  string          `json:"transmission"`
	Mileage       int             `json:"mileage"`
	Category      string          `json:"category"`
	Images        []string        `json:"images"`
	Description   string          `json:"description"`
	Features      []string        `json:"features"`
	Quantity      int             `json:"quantity"`
}

// key is the listing's natural identity used for cross-file deduplication.
func (l *listingJSON) key() string {
	return fmt.Sprintf("%s|%s|%s|%d|%s", l.Name, l.Brand, l.Model, l.Year, l.ExteriorColor)
}

func (l *listingJSON) toDomain() product.Product {
	return product.Product{
		Name:          l.Name,
		Brand:         l.Brand,
		Model:         l.Model,
		Year:          l.Year,
		Price:         l.Price,
		ExteriorColor: l.ExteriorColor,
		InteriorColor: l.InteriorColor,
		FuelType:      product.FuelType(l.FuelType),
		Transmission:  product.Transmission(l.Transmission),
		Mileage:       l.Mileage,
		Category:      product.Category(l.Category),
		Images:        l.Images,
		Description:   l.Description,
		Features:      l.Features,
		Quantity:      l.Quantity,
	}
}

func main() {
	var (
		mongoURL string
		database string
	)

	flag.StringVar(&mongoURL, "mongo-url", "", "MongoDB connection URI (or MONGO_URL env)")
	flag.StringVar(&database, "database", "wheelhouse", "MongoDB database name")
	flag.Parse()

	if mongoURL == "" {
		mongoURL = os.Getenv("MONGO_URL")
	}
	if mongoURL == "" {
		slog.Error("mongo URL is required: set --mongo-url or MONGO_URL")
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("no input files: pass one or more listings .ndjson.gz files")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, mongoURL, database, files); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, mongoURL, database string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	db, err := storagemongo.Connect(ctx, mongoURL, database)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()

	repo := storagemongo.NewProductRepository(db)

	// Readers stream files concurrently into one channel; a single writer
	// deduplicates and batches inserts so the bloom filter needs no lock on
	// the write side.
	listings := make(chan listingJSON, batchSize)

	g, gctx := errgroup.WithContext(ctx)
	var readers sync.WaitGroup
	for _, f := range files {
		readers.Add(1)
		g.Go(readListings(gctx, f, listings, &readers))
	}
	go func() {
		readers.Wait()
		close(listings)
	}()

	g.Go(func() error {
		return writeListings(gctx, repo, listings)
	})

	return g.Wait()
}

// readListings streams one gzipped NDJSON file into out. Malformed lines are
// skipped with a warning rather than aborting a multi-hour load.
func readListings(ctx context.Context, path string, out chan<- listingJSON, done *sync.WaitGroup) func() error {
	return func() error {
		defer done.Done()

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

		var count uint64
		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var l listingJSON
			if err := json.Unmarshal([]byte(line), &l); err != nil {
				slog.Warn("skipping malformed line", slog.String("file", path), slog.String("error", err.Error()))
				continue
			}

			select {
			case out <- l:
			case <-ctx.Done():
				return ctx.Err()
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("read progress", slog.String("file", path), slog.Uint64("listings", count))
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("file complete", slog.String("file", path), slog.Uint64("listings", count))
		return nil
	}
}

// writeListings deduplicates incoming listings and inserts them in batches.
func writeListings(ctx context.Context, repo *storagemongo.ProductRepository, in <-chan listingJSON) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	batch := make([]product.Product, 0, batchSize)

	var written, duplicates uint64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := repo.CreateMany(ctx, batch); err != nil {
			return errors.Wrap(err, "insert batch")
		}
		written += uint64(len(batch))
		batch = batch[:0]
		return nil
	}

	for l := range in {
		key := l.key()
		if seen.TestString(key) {
			duplicates++
			continue
		}
		seen.AddString(key)

		batch = append(batch, l.toDomain())
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	slog.Info("write complete", slog.Uint64("written", written), slog.Uint64("duplicates", duplicates))
	return nil
}
