package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/blobstore"
)

// ExportPrefix is the key prefix of every exported snapshot.
const ExportPrefix = "reports/"

// Exporter writes evaluated reports as JSON snapshots to a blob store.
type Exporter struct {
	reports *Reports
	store   blobstore.Store
	now     func() time.Time
	logger  zerolog.Logger
}

func NewExporter(reports *Reports, store blobstore.Store) *Exporter {
	return &Exporter{reports: reports, store: store, now: time.Now, logger: zerolog.Nop()}
}

func (e *Exporter) SetLogger(l zerolog.Logger) {
	e.logger = l.With().Str("component", "export").Str("driver", e.store.Driver()).Logger()
}

// Export evaluates report id and stores it under reports/<id>/<timestamp>.json.
func (e *Exporter) Export(ctx context.Context, id string, params map[string]string) (blobstore.Info, error) {
	rep, err := e.reports.Evaluate(ctx, id, params)
	if err != nil {
		return blobstore.Info{}, err
	}
	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return blobstore.Info{}, fmt.Errorf("encode report: %w", err)
	}
	key := fmt.Sprintf("%s%s/%s.json", ExportPrefix, id, e.now().UTC().Format("20060102T150405.000000000Z"))
	info, err := e.store.Put(ctx, key, "application/json", bytes.NewReader(body))
	if errors.Is(err, blobstore.ErrExists) {
		return blobstore.Info{}, apperror.Conflict("export %s already exists", key)
	}
	if err != nil {
		return blobstore.Info{}, fmt.Errorf("store export: %w", err)
	}
	e.logger.Info().Str("report_id", id).Str("key", info.Key).Int64("size", info.Size).Msg("report exported")
	return info, nil
}

// List returns stored snapshots, optionally for one report.
func (e *Exporter) List(ctx context.Context, id string) ([]blobstore.Info, error) {
	prefix := ExportPrefix
	if id != "" {
		prefix += id + "/"
	}
	infos, err := e.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	if infos == nil {
		infos = []blobstore.Info{}
	}
	return infos, nil
}

// Open returns a stored snapshot. The caller closes the reader.
func (e *Exporter) Open(ctx context.Context, key string) (blobstore.Info, io.ReadCloser, error) {
	clean, err := blobstore.CleanKey(key)
	if err != nil {
		return blobstore.Info{}, nil, apperror.InvalidArgument("%v", err)
	}
	info, rc, err := e.store.Get(ctx, clean)
	if errors.Is(err, blobstore.ErrNotFound) {
		return blobstore.Info{}, nil, apperror.NotFound("export", clean)
	}
	if err != nil {
		return blobstore.Info{}, nil, fmt.Errorf("open export: %w", err)
	}
	return info, rc, nil
}
