// Package export writes the canonical graph as one CSV per entity type,
// archives the extract and uploads the archive to object storage.
package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

var tracer = otel.Tracer("github.com/ocd-calaccess/internal/export")

// Uploader stores an archive under key.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader) error
}

// Result describes a finished export.
type Result struct {
	Dir       string
	Archive   string
	ObjectKey string
	Rows      map[string]int
}

// Exporter writes extracts of the persisted graph.
type Exporter struct {
	graph    store.GraphStore
	ledger   store.Ledger
	uploader Uploader
	prefix   string
	log      *logger.Logger
	now      func() time.Time
	newKey   func() string
}

// New creates an exporter. uploader may be nil to skip the upload.
func New(graph store.GraphStore, ledger store.Ledger, uploader Uploader, prefix string, log *logger.Logger) *Exporter {
	return &Exporter{
		graph:    graph,
		ledger:   ledger,
		uploader: uploader,
		prefix:   prefix,
		log:      log,
		now:      time.Now,
		newKey:   uuid.NewString,
	}
}

// ExportAll writes every table of the graph into dir, records an export
// marker per table against versionID, zips the extract to dir.zip and uploads
// it when an uploader is configured.
func (e *Exporter) ExportAll(ctx context.Context, versionID int64, dir string) (Result, error) {
	version, err := e.ledger.Version(ctx, versionID)
	if err != nil {
		return Result{}, err
	}
	g, err := e.graph.LoadGraph(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load graph: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create export dir: %w", err)
	}

	tables := Tables(g)
	res := Result{Dir: dir, Rows: make(map[string]int, len(tables))}
	counts := make([]int, len(tables))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, t := range tables {
		eg.Go(func() error {
			n, err := e.writeTable(egctx, version.ID, dir, t)
			counts[i] = n
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}
	for i, t := range tables {
		res.Rows[t.Name] = counts[i]
	}

	res.Archive = filepath.Clean(dir) + ".zip"
	if err := zipDir(dir, res.Archive); err != nil {
		return Result{}, err
	}
	e.log.Info("export archived", "archive", res.Archive, "tables", len(tables))

	if e.uploader != nil {
		key := path.Join(e.prefix, version.RawVersion.UTC().Format(ocd.DateLayout), e.newKey()+".zip")
		f, err := os.Open(res.Archive)
		if err != nil {
			return Result{}, fmt.Errorf("failed to open archive: %w", err)
		}
		defer f.Close()
		if err := e.uploader.Upload(ctx, key, f); err != nil {
			return Result{}, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		res.ObjectKey = key
		e.log.Info("export uploaded", "key", key)
	}
	return res, nil
}

func (e *Exporter) writeTable(ctx context.Context, versionID int64, dir string, t Table) (int, error) {
	ctx, span := tracer.Start(ctx, "export "+t.Name)
	defer span.End()

	file := t.Name + ".csv"
	if err := e.ledger.StartFile(ctx, versionID, file, ocd.FileExport, e.now()); err != nil {
		return 0, err
	}

	n, err := writeCSV(filepath.Join(dir, file), t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("export %s: %w", t.Name, err)
	}
	span.SetAttributes(attribute.Int("rows", n))

	if err := e.ledger.FinishFile(ctx, versionID, file, ocd.FileExport, e.now(), n); err != nil {
		return 0, err
	}
	e.log.Debug("exported table", "table", t.Name, "rows", n)
	return n, nil
}

func writeCSV(name string, t Table) (int, error) {
	f, err := os.Create(name)
	if err != nil {
		return 0, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		f.Close()
		return 0, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return len(t.Rows), nil
}

// zipDir archives the regular files of dir, sorted by name, into target.
func zipDir(dir, target string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read export dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	zw := zip.NewWriter(out)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := addFile(zw, filepath.Join(dir, entry.Name()), entry.Name()); err != nil {
			zw.Close()
			out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return out.Close()
}

func addFile(zw *zip.Writer, name, entry string) error {
	src, err := os.Open(name)
	if err != nil {
		return err
	}
	defer src.Close()
	w, err := zw.Create(entry)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
