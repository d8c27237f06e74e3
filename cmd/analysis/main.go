// Command analysis builds a scalable filter over synthetic keys and reports
// how its generations and false positive rate evolve as it grows.
//
//	go run ./cmd/analysis -n 1000000 -capacity 10000 -growth 2 -tighten 0.85
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/jcalabro/sbloom"
)

type config struct {
	params   sbloom.FilterParams
	capacity int
	growth   int

	items   int
	batches int
	probes  int
	out     string
	verbose bool
}

func parseFlags() config {
	def := sbloom.DefaultParams()

	var cfg config
	flag.Float64Var(&cfg.params.FalsePositiveRate, "fp", def.FalsePositiveRate, "target false positive rate of the first generation")
	flag.IntVar(&cfg.capacity, "capacity", int(def.InitialCapacity), "initial generation capacity")
	flag.IntVar(&cfg.growth, "growth", int(def.GrowthRate), "capacity growth rate per generation")
	flag.Float64Var(&cfg.params.TighteningRatio, "tighten", def.TighteningRatio, "false positive tightening ratio per generation")
	flag.IntVar(&cfg.items, "n", 1_000_000, "number of keys to insert")
	flag.IntVar(&cfg.batches, "batches", 10, "number of insert batches")
	flag.IntVar(&cfg.probes, "probes", 100_000, "number of absent keys probed after each batch")
	flag.StringVar(&cfg.out, "out", "", "write the final filter to this file")
	flag.BoolVar(&cfg.verbose, "v", false, "log every generation after each batch")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()

	logger, err := newLogger(cfg.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("analysis failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

func run(cfg config, log *zap.Logger) error {
	if cfg.items < 0 || cfg.batches < 1 || cfg.probes < 1 {
		return errors.New("n must be >= 0, batches and probes >= 1")
	}
	if cfg.capacity > math.MaxInt32 || cfg.growth > math.MaxInt32 {
		return errors.New("capacity and growth must fit in 32 bits")
	}
	cfg.params.InitialCapacity = int32(cfg.capacity)
	cfg.params.GrowthRate = int32(cfg.growth)

	b, err := sbloom.NewBuilder[uint64](cfg.params, sbloom.Uint64Hasher{})
	if err != nil {
		return err
	}
	log.Info("building",
		zap.Float64("fp", cfg.params.FalsePositiveRate),
		zap.Int32("capacity", cfg.params.InitialCapacity),
		zap.Int32("growth", cfg.params.GrowthRate),
		zap.Float64("tighten", cfg.params.TighteningRatio),
		zap.Int("items", cfg.items),
	)

	f := b.Empty()
	next := uint64(0)
	for batch := range cfg.batches {
		size := uint64(cfg.items / cfg.batches)
		if batch == cfg.batches-1 {
			size = uint64(cfg.items) - next
		}
		f = f.AddAll(func(yield func(uint64) bool) {
			for end := next + size; next < end; next++ {
				if !yield(next) {
					return
				}
			}
		})

		report(log, batch, f, measure(f, next, cfg.probes))
	}

	return verifyEncoding(log, f, cfg.out)
}

// measure probes keys above the inserted range, which are all absent.
func measure(f *sbloom.Scalable[uint64], inserted uint64, probes int) float64 {
	var hits int
	for i := range uint64(probes) {
		if f.MayContain(inserted + 1<<40 + i) {
			hits++
		}
	}
	return float64(hits) / float64(probes)
}

func report(log *zap.Logger, batch int, f *sbloom.Scalable[uint64], observed float64) {
	log.Info("batch",
		zap.Int("batch", batch),
		zap.Uint64("elements", f.ApproximateElementCount()),
		zap.Int("generations", f.SubFilterCount()),
		zap.Float64("fp_estimated", f.EstimatedFalsePositiveRate()),
		zap.Float64("fp_observed", observed),
	)

	filters := f.SubFilters()
	for i, sub := range filters {
		g := len(filters) - 1 - i
		log.Debug("generation",
			zap.Int("generation", g),
			zap.Uint64("capacity", f.Params().Capacity(g)),
			zap.Uint64("count", sub.Count()),
			zap.Uint32("k", sub.K()),
			zap.Uint64("blocks", sub.NumBlocks()),
			zap.Float64("fill", sub.EstimatedFillRatio()),
		)
	}
}

// verifyEncoding serializes f, decodes it back and checks the two agree.
// If path is set the encoding is also written there.
func verifyEncoding(log *zap.Logger, f *sbloom.Scalable[uint64], path string) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	restored, err := sbloom.NewDecoder[uint64](sbloom.Uint64Hasher{}).UnmarshalBinary(data)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	again, err := restored.MarshalBinary()
	if err != nil {
		return err
	}
	if !bytes.Equal(again, data) {
		return errors.New("re-encoded filter differs from original")
	}
	log.Info("encoding verified", zap.Int("bytes", len(data)), zap.Int("generations", restored.SubFilterCount()))

	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Info("wrote filter", zap.String("path", path))
	return nil
}
