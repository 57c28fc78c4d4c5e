// Package importer bulk-loads raw CAL-ACCESS extracts and scraped-record
// dumps into the raw input tables.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
)

// Target receives complete replacements of the raw input tables.
type Target interface {
	ReplaceForm501Filings(ctx context.Context, filings []ocd.Form501Filing) error
	ReplaceFilerTypes(ctx context.Context, records []ocd.FilerTypeRecord) error
	ReplaceScraped(ctx context.Context, set ocd.ScrapedSet) error
}

// Result counts the rows of one import.
type Result struct {
	Imported int
	Errors   int
}

// Importer reads extract files and hands the parsed rows to a Target.
type Importer struct {
	target Target
	log    *logger.Logger
}

// New creates an importer writing to target.
func New(target Target, log *logger.Logger) *Importer {
	return &Importer{target: target, log: log}
}

// ImportFile opens path and imports it as kind: "form501", "filer-types" or
// "scraped".
func (im *Importer) ImportFile(ctx context.Context, kind, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	comma := ','
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		comma = '\t'
	}

	done := im.log.Timing("import " + kind)
	defer done()

	switch kind {
	case "form501":
		return im.ImportForm501(ctx, f, comma)
	case "filer-types":
		return im.ImportFilerTypes(ctx, f, comma)
	case "scraped":
		return im.ImportScraped(ctx, f)
	}
	return Result{}, fmt.Errorf("unknown import kind %q", kind)
}

// row is one record addressed by lower-cased header name.
type row struct {
	record  []string
	columns map[string]int
}

func (r row) get(name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

func (r row) intValue(name string) (int, error) {
	v := r.get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", name, err)
	}
	return n, nil
}

func (r row) timeValue(name string) (time.Time, error) {
	v := r.get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, ok := parseDate(v)
	if !ok {
		return time.Time{}, fmt.Errorf("column %s: unrecognised date %q", name, v)
	}
	return t, nil
}

// readRows reads a delimited file with a header row and calls fn for every
// record. Records fn rejects are logged and counted, not fatal.
func (im *Importer) readRows(r io.Reader, comma rune, required []string, fn func(row) error) (Result, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, col := range header {
		columns[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return Result{}, fmt.Errorf("missing column %s", name)
		}
	}

	var res Result
	line := 1
	for {
		record, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			im.log.Warn("error reading record", "line", line, "error", err)
			res.Errors++
			continue
		}
		if err := fn(row{record: record, columns: columns}); err != nil {
			im.log.Warn("error mapping record", "line", line, "error", err)
			res.Errors++
			continue
		}
		res.Imported++
		if res.Imported%10000 == 0 {
			im.log.Debug("imported records", "count", res.Imported)
		}
	}
	return res, nil
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"1/2/2006 3:04:05 PM",
	"01/02/2006",
	"1/2/2006",
}

// parseDate accepts the ISO and CAL-ACCESS export layouts; values are UTC.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
