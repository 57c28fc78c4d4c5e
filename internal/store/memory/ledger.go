package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

// Ledger is an in-memory processing-run ledger.
type Ledger struct {
	mu       sync.Mutex
	versions []ocd.ProcessedVersion
	files    []ocd.ProcessedFile
}

var _ store.Ledger = (*Ledger)(nil)

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) OpenVersion(_ context.Context, rawVersion, now time.Time) (ocd.ProcessedVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, v := range l.versions {
		if v.RawVersion.Equal(rawVersion) {
			return v, nil
		}
	}
	v := ocd.ProcessedVersion{ID: int64(len(l.versions) + 1), RawVersion: rawVersion, ProcessStart: now}
	l.versions = append(l.versions, v)
	return v, nil
}

func (l *Ledger) FinishVersion(_ context.Context, id int64, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.versions {
		if l.versions[i].ID == id {
			l.versions[i].ProcessFinish = now
			return nil
		}
	}
	return &store.NotFoundError{Entity: "processed version", ID: id}
}

func (l *Ledger) Versions(_ context.Context) ([]ocd.ProcessedVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]ocd.ProcessedVersion(nil), l.versions...), nil
}

func (l *Ledger) Version(_ context.Context, id int64) (ocd.ProcessedVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, v := range l.versions {
		if v.ID == id {
			return v, nil
		}
	}
	return ocd.ProcessedVersion{}, &store.NotFoundError{Entity: "processed version", ID: id}
}

func (l *Ledger) Files(_ context.Context, versionID int64) ([]ocd.ProcessedFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ocd.ProcessedFile
	for _, f := range l.files {
		if f.VersionID == versionID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (l *Ledger) StartFile(_ context.Context, versionID int64, name string, kind ocd.FileKind, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.find(versionID, name, kind); i >= 0 {
		l.files[i].ProcessStart = now
		l.files[i].ProcessFinish = time.Time{}
		l.files[i].RecordsCount = 0
		return nil
	}
	l.files = append(l.files, ocd.ProcessedFile{
		ID:           int64(len(l.files) + 1),
		VersionID:    versionID,
		FileName:     name,
		Kind:         kind,
		ProcessStart: now,
	})
	return nil
}

func (l *Ledger) FinishFile(_ context.Context, versionID int64, name string, kind ocd.FileKind, now time.Time, count int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.find(versionID, name, kind)
	if i < 0 {
		return &store.NotFoundError{Entity: "processed file " + name, ID: versionID}
	}
	l.files[i].ProcessFinish = now
	l.files[i].RecordsCount = count
	return nil
}

func (l *Ledger) find(versionID int64, name string, kind ocd.FileKind) int {
	for i, f := range l.files {
		if f.VersionID == versionID && f.FileName == name && f.Kind == kind {
			return i
		}
	}
	return -1
}

// GraphStore keeps a persisted graph in memory.
type GraphStore struct {
	mu    sync.Mutex
	graph store.Graph
	saves int
}

var _ store.GraphStore = (*GraphStore)(nil)

// LoadGraph returns a deep copy of the last saved graph.
func (g *GraphStore) LoadGraph(_ context.Context) (store.Graph, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return FromGraph(g.graph).Graph(), nil
}

// SaveGraph replaces the saved graph with a deep copy of graph.
func (g *GraphStore) SaveGraph(_ context.Context, graph store.Graph) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.graph = FromGraph(graph).Graph()
	g.saves++
	return nil
}

// Saves reports how many times SaveGraph was called.
func (g *GraphStore) Saves() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves
}
