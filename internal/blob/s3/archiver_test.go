package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	w.types[path] = contentType
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "multipart")
}

type oppHistory []domain.OpportunityRecord

func (h oppHistory) ListBefore(context.Context, time.Time) ([]domain.OpportunityRecord, error) {
	return h, nil
}

type bundleHistory struct {
	err error
}

func (h bundleHistory) ListBefore(context.Context, time.Time) ([]domain.BundleRecord, error) {
	return nil, h.err
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveOpportunities(t *testing.T) {
	w := newMemWriter()
	audit := &memAudit{}
	opps := oppHistory{
		{ID: "a", Block: 1, Volume: "10", Profit: "2"},
		{ID: "b", Block: 2, Volume: "11", Profit: "3"},
	}
	a := NewArchiver(w, opps, bundleHistory{}, audit)

	cutoff := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	n, err := a.ArchiveOpportunities(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	path := "archive/opportunities/2026-10/2026-10-19.jsonl"
	require.Contains(t, w.objects, path)
	assert.Equal(t, jsonlContentType, w.types[path])
	lines := strings.Split(strings.TrimSpace(string(w.objects[path])), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, bytes.HasPrefix([]byte(lines[0]), []byte(`{"id":"a"`)))
	assert.Equal(t, []string{"archive.opportunities"}, audit.events)
}

func TestArchiveBundles_EmptyAndErrors(t *testing.T) {
	w := newMemWriter()
	a := NewArchiver(w, oppHistory{}, bundleHistory{}, nil)

	n, err := a.ArchiveBundles(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)

	a = NewArchiver(w, oppHistory{}, bundleHistory{err: errors.New("db down")}, nil)
	_, err = a.ArchiveBundles(context.Background(), time.Now())
	assert.ErrorContains(t, err, "db down")

	w.err = errors.New("denied")
	a = NewArchiver(w, oppHistory{{ID: "x"}}, bundleHistory{}, nil)
	_, err = a.ArchiveOpportunities(context.Background(), time.Now())
	assert.ErrorContains(t, err, "denied")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://e2.example.com", normaliseEndpoint("e2.example.com", false))
}
