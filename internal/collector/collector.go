package collector

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/user/ghg-dashboard/internal/aggregate"
	"github.com/user/ghg-dashboard/internal/csvtable"
	"github.com/user/ghg-dashboard/internal/models"
	"github.com/user/ghg-dashboard/internal/normalize"
)

const Version = "0.1.0"

// DefaultCacheDir is used when Options.CacheDir is empty.
const DefaultCacheDir = ".ghg-dashboard/cache"

// ErrEmptyDataset is returned when the input has a header but no data rows.
var ErrEmptyDataset = errors.New("dataset has no data rows")

// Options configures an EmissionsCollector.
type Options struct {
	Source     string
	Parser     string
	Encoding   string
	CacheDir   string
	NoCache    bool
	HTTPClient *http.Client
}

// EmissionsCollector turns an emissions CSV into aggregated CollectedData.
type EmissionsCollector struct {
	Source string
	opts   Options
	logger *zap.Logger
	raw    []byte
	key    string
	Data   models.CollectedData
}

// New prepares a collector for opts.Source without reading it. The source is
// fetched by Load, or lazily by Start.
func New(opts Options, logger *zap.Logger) (*EmissionsCollector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Parser == "" {
		opts.Parser = csvtable.ModeNaive
	}
	if opts.CacheDir == "" {
		opts.CacheDir = DefaultCacheDir
	}

	source := opts.Source
	if !IsURL(source) {
		abs, err := filepath.Abs(source)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", source, err)
		}
		source = abs
	}
	return &EmissionsCollector{
		Source: source,
		opts:   opts,
		logger: logger.With(zap.String("source", source)),
	}, nil
}

// NewEmissionsCollector fetches the source and prepares a collector for it.
func NewEmissionsCollector(ctx context.Context, opts Options, logger *zap.Logger) (*EmissionsCollector, error) {
	ec, err := New(opts, logger)
	if err != nil {
		return nil, err
	}
	if err := ec.Load(ctx); err != nil {
		return nil, err
	}
	return ec, nil
}

// Load reads the source bytes and derives the cache key from them.
func (ec *EmissionsCollector) Load(ctx context.Context) error {
	raw, err := Fetch(ctx, ec.opts.HTTPClient, ec.Source)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(raw)
	ec.raw = raw
	ec.key = hex.EncodeToString(sum[:])
	return nil
}

// cachePath is keyed by the input content and every option that changes the result.
func (ec *EmissionsCollector) cachePath() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", ec.key, ec.opts.Parser, ec.opts.Encoding, Version)
	return filepath.Join(ec.opts.CacheDir, hex.EncodeToString(h.Sum(nil))[:32]+".zip.gob")
}

// CacheExists checks if a cache file exists for the current input.
func (ec *EmissionsCollector) CacheExists() bool {
	_, err := os.Stat(ec.cachePath())
	return !os.IsNotExist(err)
}

// SaveCache saves the collected data to a gob-encoded, zip-compressed file.
func (ec *EmissionsCollector) SaveCache() error {
	cacheFile := ec.cachePath()
	if err := os.MkdirAll(filepath.Dir(cacheFile), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", filepath.Dir(cacheFile), err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ec.Data); err != nil {
		return fmt.Errorf("failed to gob-encode data: %w", err)
	}

	zipFile, err := os.Create(cacheFile)
	if err != nil {
		return fmt.Errorf("failed to create zip cache file %s: %w", cacheFile, err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	dataWriter, err := zipWriter.Create("data.gob")
	if err != nil {
		return fmt.Errorf("failed to create data.gob entry in zip: %w", err)
	}
	if _, err := dataWriter.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write gob data to zip entry: %w", err)
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	ec.logger.Debug("data cached", zap.String("cache_file", cacheFile))
	return nil
}

// LoadCache loads collected data from a gob-encoded, zip-compressed file.
func (ec *EmissionsCollector) LoadCache() error {
	cacheFile := ec.cachePath()
	zipReader, err := zip.OpenReader(cacheFile)
	if err != nil {
		return fmt.Errorf("failed to open zip cache file %s: %w", cacheFile, err)
	}
	defer zipReader.Close()

	if len(zipReader.File) == 0 || zipReader.File[0].Name != "data.gob" {
		return fmt.Errorf("invalid cache file format: data.gob not found")
	}

	dataFile, err := zipReader.File[0].Open()
	if err != nil {
		return fmt.Errorf("failed to open data.gob from zip: %w", err)
	}
	defer dataFile.Close()

	var data models.CollectedData
	if err := gob.NewDecoder(dataFile).Decode(&data); err != nil {
		return fmt.Errorf("failed to gob-decode data: %w", err)
	}
	ec.Data = data
	ec.logger.Debug("data loaded from cache", zap.String("cache_file", cacheFile))
	return nil
}

// ClearCache removes the cache file for the current input.
func (ec *EmissionsCollector) ClearCache() error {
	cacheFile := ec.cachePath()
	err := os.Remove(cacheFile)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file %s: %w", cacheFile, err)
	}
	if err == nil {
		ec.logger.Info("cache file removed", zap.String("cache_file", cacheFile))
	}
	return nil
}

// Collect fills Data, from the cache when a valid one exists.
func (ec *EmissionsCollector) Collect() error {
	if !ec.opts.NoCache && ec.CacheExists() {
		if err := ec.LoadCache(); err != nil {
			ec.logger.Warn("failed to load cache, re-collecting", zap.Error(err))
		} else if ec.Data.Metadata.SourceSHA256 != ec.key || ec.Data.EmissionsByRegion == nil {
			ec.logger.Warn("cache incomplete or stale, re-collecting")
		} else {
			return nil
		}
	}

	if err := ec.collect(); err != nil {
		return err
	}
	if ec.opts.NoCache {
		return nil
	}
	if err := ec.SaveCache(); err != nil {
		return fmt.Errorf("failed to save data to cache: %w", err)
	}
	return nil
}

// Start loads the source if needed, runs Collect in the background and
// publishes the result once. Fetch and decode failures are published too.
func (ec *EmissionsCollector) Start(ctx context.Context) *Future {
	f := NewFuture()
	go func() {
		if ec.raw == nil {
			if err := ec.Load(ctx); err != nil {
				f.Publish(nil, err)
				return
			}
		}
		if err := ec.Collect(); err != nil {
			f.Publish(nil, err)
			return
		}
		data := ec.Data
		f.Publish(&data, nil)
	}()
	return f
}

func (ec *EmissionsCollector) collect() error {
	text, err := csvtable.Decode(ec.raw, ec.opts.Encoding)
	if err != nil {
		return err
	}

	raw, warn, err := csvtable.ParseMode(ec.opts.Parser, text)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", ec.Source, err)
	}
	if raw.Len() == 0 {
		return fmt.Errorf("%s: %w", ec.Source, ErrEmptyDataset)
	}

	normalized, headerMap := normalize.Normalize(raw)
	if missing := normalize.MissingCanonical(normalized); len(missing) > 0 {
		ec.logger.Warn("expected columns not found after header cleaning", zap.Strings("missing", missing))
	}
	records := normalize.ToRecords(normalized)

	byRegion := aggregate.ByRegion(records)
	byYear := aggregate.ByYear(records)
	warn.UnparsedEmissions = aggregate.CountUnparsed(records)
	_, warn.SkippedYears = aggregate.YearSeries(byYear)

	hostname, _ := os.Hostname()
	ec.Data = models.CollectedData{
		Metadata: models.Metadata{
			Version:       Version,
			DateCollected: time.Now().UTC(),
			Source:        ec.Source,
			SourceSHA256:  ec.key,
			Parser:        ec.opts.Parser,
			Encoding:      ec.opts.Encoding,
			Hostname:      hostname,
			Platform:      fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
			GoVersion:     runtime.Version(),
		},
		HeaderMap:         headerMap,
		Dataset:           normalized,
		Records:           records,
		RowCount:          normalized.Len(),
		EmissionsByRegion: byRegion,
		EmissionsByYear:   byYear,
		Warnings:          *warn,
	}

	ec.logger.Info("dataset aggregated",
		zap.Int("rows", normalized.Len()),
		zap.Int("provinces", byRegion.Len()),
		zap.Int("years", byYear.Len()))
	if !warn.Empty() {
		ec.logger.Warn("data quality issues tolerated",
			zap.Int("column_mismatches", len(warn.ColumnMismatches)),
			zap.Int("unparsed_emissions", warn.UnparsedEmissions),
			zap.Strings("skipped_years", warn.SkippedYears))
	}
	return nil
}
