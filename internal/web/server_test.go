package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocd-calaccess/internal/db"
	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
	"github.com/ocd-calaccess/internal/store/sqlstore"
	"github.com/ocd-calaccess/internal/web/handlers"
)

func newTestServer(t *testing.T, apiKey string) (*Server, int64) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.NewConnection(ctx, db.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s := sqlstore.New(conn, logger.Nop())
	require.NoError(t, s.Migrate(ctx))

	merged := time.Date(2018, time.January, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveGraph(ctx, store.Graph{
		Persons: []ocd.Person{{
			ID: 7, Name: "JANE DOE", SortName: "DOE, JANE",
			Identifiers: []ocd.Identifier{{Scheme: ocd.SchemeFilerID, Value: "1001"}},
		}},
		Posts:       []ocd.Post{{ID: 3, Label: "State Assembly District 10", Role: "Assembly Member"}},
		Memberships: []ocd.Membership{{ID: 9, PersonID: 7, PostID: 3, Role: "Assembly Member", StartDate: "2016-12-05"}},
		Merges:      []ocd.PersonMerge{{ID: 1, SurvivorID: 7, LoserID: 8, LoserName: "DOE, JANE A", Reason: "shared filer id", MergedAt: merged}},
	}))

	v, err := s.OpenVersion(ctx, time.Date(2018, time.January, 14, 0, 0, 0, 0, time.UTC), merged)
	require.NoError(t, err)
	require.NoError(t, s.StartFile(ctx, v.ID, "elections", ocd.FileStage, merged))
	require.NoError(t, s.FinishFile(ctx, v.ID, "elections", ocd.FileStage, merged.Add(time.Minute), 12))

	cfg := DefaultConfig()
	cfg.Auth.APIKey = apiKey
	return NewServer(cfg, s, logger.Nop()), v.ID
}

func get(t *testing.T, srv *Server, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	srv, versionID := newTestServer(t, "")

	t.Run("versions", func(t *testing.T) {
		rec := get(t, srv, "/api/versions", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var got []handlers.VersionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, versionID, got[0].ID)
		assert.False(t, got[0].Finished)
	})

	t.Run("version", func(t *testing.T) {
		rec := get(t, srv, "/api/versions/1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got handlers.VersionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got.Files, 1)
		assert.Equal(t, "elections", got.Files[0].FileName)
		assert.Equal(t, 12, got.Files[0].RecordsCount)
	})

	t.Run("person", func(t *testing.T) {
		rec := get(t, srv, "/api/persons/7", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got sqlstore.PersonRecord
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "JANE DOE", got.Person.Name)
		assert.Equal(t, []string{"1001"}, got.Person.IdentifierValues(ocd.SchemeFilerID))
		require.Len(t, got.Memberships, 1)
		assert.Equal(t, int64(3), got.Memberships[0].PostID)
	})

	t.Run("merges", func(t *testing.T) {
		rec := get(t, srv, "/api/merges", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got []ocd.PersonMerge
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, int64(8), got[0].LoserID)
	})

	t.Run("stats", func(t *testing.T) {
		rec := get(t, srv, "/api/stats", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got handlers.StatsResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, 1, got.Tables["persons"])
		assert.Equal(t, 1, got.Tables["person_merges"])
		assert.Equal(t, 0, got.Tables["candidacies"])
	})
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")
	tests := []struct {
		path string
		code int
	}{
		{"/api/versions/42", http.StatusNotFound},
		{"/api/persons/42", http.StatusNotFound},
		{"/api/persons/abc", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.code, get(t, srv, tt.path, nil).Code)
		})
	}
}

func TestAPIKey(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, get(t, srv, "/api/stats", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv, "/api/stats", map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, get(t, srv, "/api/stats", map[string]string{"X-API-Key": "s3cret"}).Code)
}
