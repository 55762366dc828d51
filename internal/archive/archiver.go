// Package archive ages out run-date partitions: old partitions are exported
// to the blob store as gzipped JSONL, and partitions past retention are
// dropped from the projection store.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aquacast/internal/blob"
	"aquacast/internal/observability"
	"aquacast/pkg/domain"
)

const (
	keyPrefix   = "runs/"
	contentType = "application/gzip"
)

// ArchiveKey is the blob key holding one run-date partition.
func ArchiveKey(runDate time.Time) string {
	return keyPrefix + domain.CivilDate(runDate).Format("2006-01-02") + ".jsonl.gz"
}

// Archiver sweeps the projection store's partitions against the compression
// and retention windows.
type Archiver struct {
	store   domain.ProjectionStore
	blobs   blob.Store
	logger  observability.Logger
	metrics observability.MetricsRecorder

	compressAfterDays int
	retentionDays     int
}

// Option adjusts archiver construction.
type Option func(*Archiver)

// WithLogger installs a logger.
func WithLogger(l observability.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(a *Archiver) {
		if m != nil {
			a.metrics = m
		}
	}
}

// New constructs an archiver over the projection store and blob backend.
func New(store domain.ProjectionStore, blobs blob.Store, compressAfterDays, retentionDays int, opts ...Option) *Archiver {
	a := &Archiver{
		store:             store,
		blobs:             blobs,
		logger:            observability.NopLogger{},
		metrics:           observability.NopMetrics{},
		compressAfterDays: compressAfterDays,
		retentionDays:     retentionDays,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Report lists what one sweep did.
type Report struct {
	Archived []string `json:"archived,omitempty"`
	Dropped  []string `json:"dropped,omitempty"`
}

// Sweep archives partitions older than the compression window and drops
// partitions older than the retention window. Already-archived partitions
// are skipped, so sweeps are idempotent and safe after a crash.
func (a *Archiver) Sweep(ctx context.Context, now time.Time) (Report, error) {
	started := time.Now()
	report, err := a.sweep(ctx, now)
	a.metrics.Observe(ctx, "archive_sweep", err == nil, time.Since(started))
	return report, err
}

func (a *Archiver) sweep(ctx context.Context, now time.Time) (Report, error) {
	var report Report
	today := domain.CivilDate(now)
	compressBefore := today.AddDate(0, 0, -a.compressAfterDays)
	dropBefore := today.AddDate(0, 0, -a.retentionDays)

	dates, err := a.store.PartitionDates(ctx)
	if err != nil {
		return report, fmt.Errorf("list partitions: %w", err)
	}
	for _, date := range dates {
		if !date.Before(compressBefore) {
			continue
		}
		archived, err := a.archivePartition(ctx, date)
		if err != nil {
			return report, err
		}
		if archived {
			report.Archived = append(report.Archived, date.Format("2006-01-02"))
		}
		if date.Before(dropBefore) {
			if err := a.store.DropPartition(ctx, date); err != nil {
				return report, fmt.Errorf("drop partition %s: %w", date.Format("2006-01-02"), err)
			}
			a.logger.Info("partition dropped", "run_date", date.Format("2006-01-02"))
			report.Dropped = append(report.Dropped, date.Format("2006-01-02"))
		}
	}
	return report, nil
}

// archivePartition writes one partition to the blob store unless an archive
// for it already exists. Returns whether a new archive was written.
func (a *Archiver) archivePartition(ctx context.Context, date time.Time) (bool, error) {
	key := ArchiveKey(date)
	existing, err := a.blobs.List(ctx, key)
	if err != nil {
		return false, fmt.Errorf("probe archive %s: %w", key, err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	points, err := a.store.ExportPartition(ctx, date)
	if err != nil {
		return false, fmt.Errorf("export partition %s: %w", date.Format("2006-01-02"), err)
	}
	payload, err := encodePartition(points)
	if err != nil {
		return false, err
	}
	info, err := a.blobs.Put(ctx, key, bytes.NewReader(payload), contentType)
	if err != nil {
		return false, fmt.Errorf("archive %s: %w", key, err)
	}
	a.logger.Info("partition archived",
		"run_date", date.Format("2006-01-02"),
		"key", info.Key,
		"rows", len(points),
		"bytes", info.Size)
	return true, nil
}

// encodePartition renders points as gzipped JSONL, one point per line.
func encodePartition(points []domain.ProjectionPoint) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	for _, pt := range points {
		if err := enc.Encode(pt); err != nil {
			return nil, fmt.Errorf("encode point: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadArchive decodes a gzipped JSONL archive previously written by Sweep.
func ReadArchive(ctx context.Context, blobs blob.Store, runDate time.Time) ([]domain.ProjectionPoint, error) {
	_, rc, err := blobs.Get(ctx, ArchiveKey(runDate))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	zr, err := gzip.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = zr.Close() }()
	var points []domain.ProjectionPoint
	dec := json.NewDecoder(zr)
	for dec.More() {
		var pt domain.ProjectionPoint
		if err := dec.Decode(&pt); err != nil {
			return nil, fmt.Errorf("decode point: %w", err)
		}
		points = append(points, pt)
	}
	return points, nil
}
