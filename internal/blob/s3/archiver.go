package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// multipartThreshold switches uploads to the transfer manager.
const multipartThreshold = 64 * 1024 * 1024

// OpportunityHistory lists opportunities older than a cutoff.
type OpportunityHistory interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.OpportunityRecord, error)
}

// BundleHistory lists bundle attempts older than a cutoff.
type BundleHistory interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.BundleRecord, error)
}

// ArchiveImpl implements domain.Archiver. Records are written as JSONL;
// nothing is deleted from the source store.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	opps    OpportunityHistory
	bundles BundleHistory
	audit   domain.AuditStore
}

// NewArchiver creates an ArchiveImpl. audit may be nil.
func NewArchiver(writer domain.BlobWriter, opps OpportunityHistory, bundles BundleHistory, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, opps: opps, bundles: bundles, audit: audit}
}

// ArchiveOpportunities uploads opportunities detected before the cutoff to
// archive/opportunities/<cutoff>.jsonl.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.opps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	return archive(ctx, a, "opportunities", before, recs)
}

// ArchiveBundles uploads bundle attempts created before the cutoff to
// archive/bundles/<cutoff>.jsonl.
func (a *ArchiveImpl) ArchiveBundles(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.bundles.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bundles query: %w", err)
	}
	return archive(ctx, a, "bundles", before, recs)
}

func archive[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, recs []T) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(recs))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
			"path":   path,
			"count":  count,
			"before": before.UTC().Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
		}
	}
	return count, nil
}

// archivePath partitions by the UTC day of the cutoff:
//
//	archive/opportunities/2026-10/2026-10-19.jsonl
func archivePath(kind string, before time.Time) string {
	t := before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, t.Format("2006-01"), t.Format("2006-01-02"))
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
