package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ocd-calaccess/internal/export"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/pipeline"
	"github.com/ocd-calaccess/internal/suggest"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func printStageReport(r pipeline.Report) {
	if len(r.Stages) == 0 {
		return
	}
	t := newTable()
	t.SetTitle(fmt.Sprintf("Processed version %d", r.VersionID))
	t.AppendHeader(table.Row{"Stage", "Created", "Matched", "Skipped", "Warnings", "Took"})
	for _, s := range r.Stages {
		if s.Resumed {
			t.AppendRow(table.Row{s.Stage, "-", "-", "-", "-", "already finished"})
			continue
		}
		t.AppendRow(table.Row{s.Stage, s.Created, s.Matched, s.Skipped, s.Warnings, s.Took.Round(time.Millisecond)})
	}
	t.Render()
}

func printVersions(versions []ocd.ProcessedVersion, markers map[int64][]ocd.ProcessedFile) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Raw version", "Started", "Finished", "Stages", "Exports"})
	for _, v := range versions {
		finished := "running"
		if v.Finished() {
			finished = v.ProcessFinish.Format("2006-01-02 15:04")
		}
		var stages, exports int
		for _, f := range markers[v.ID] {
			if !f.Finished() {
				continue
			}
			switch f.Kind {
			case ocd.FileStage:
				stages++
			case ocd.FileExport:
				exports++
			}
		}
		t.AppendRow(table.Row{
			v.ID, v.RawVersion.Format(ocd.DateLayout), v.ProcessStart.Format("2006-01-02 15:04"), finished,
			fmt.Sprintf("%d/%d", stages, len(pipeline.Stages)), exports,
		})
	}
	t.Render()
}

func printExportResult(res export.Result) {
	names := make([]string, 0, len(res.Rows))
	for name := range res.Rows {
		names = append(names, name)
	}
	sort.Strings(names)

	t := newTable()
	t.AppendHeader(table.Row{"Table", "Rows"})
	for _, name := range names {
		t.AppendRow(table.Row{name, res.Rows[name]})
	}
	t.AppendFooter(table.Row{"Archive", res.Archive})
	if res.ObjectKey != "" {
		t.AppendFooter(table.Row{"Uploaded", res.ObjectKey})
	}
	t.Render()
}

func printPairs(pairs []suggest.Pair) {
	if len(pairs) == 0 {
		fmt.Println("No near-duplicate persons found")
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"Post", "Person", "Name", "Person", "Name", "Similarity", "Sounds alike"})
	for _, p := range pairs {
		t.AppendRow(table.Row{p.PostID, p.LeftID, p.LeftName, p.RightID, p.RightName, fmt.Sprintf("%.3f", p.Similarity), p.SoundsAlike})
	}
	t.Render()
}
