package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/store"
)

const versionColumns = "id, raw_version, process_start, process_finish"

func scanVersion(row interface{ Scan(...any) error }) (ocd.ProcessedVersion, error) {
	var (
		v                    ocd.ProcessedVersion
		raw, start, finished nullTime
	)
	if err := row.Scan(&v.ID, &raw, &start, &finished); err != nil {
		return ocd.ProcessedVersion{}, err
	}
	v.RawVersion, v.ProcessStart, v.ProcessFinish = raw.Time, start.Time, finished.Time
	return v, nil
}

// OpenVersion returns the run for rawVersion, creating it if needed.
func (s *Store) OpenVersion(ctx context.Context, rawVersion, now time.Time) (ocd.ProcessedVersion, error) {
	versions, err := s.Versions(ctx)
	if err != nil {
		return ocd.ProcessedVersion{}, err
	}
	for _, v := range versions {
		if v.RawVersion.Equal(rawVersion) {
			return v, nil
		}
	}

	row := s.db.QueryRowContext(ctx,
		s.rebind("INSERT INTO processed_versions (raw_version, process_start) VALUES (?, ?) RETURNING "+versionColumns),
		ts(rawVersion), ts(now))
	v, err := scanVersion(row)
	if err != nil {
		return ocd.ProcessedVersion{}, fmt.Errorf("failed to open version %s: %w", rawVersion.Format(time.RFC3339), err)
	}
	s.log.Info("opened processing version", "id", v.ID, "raw_version", rawVersion)
	return v, nil
}

func (s *Store) FinishVersion(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE processed_versions SET process_finish = ? WHERE id = ?"), ts(now), id)
	if err != nil {
		return fmt.Errorf("failed to finish version %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &store.NotFoundError{Entity: "processed version", ID: id}
	}
	return nil
}

func (s *Store) Versions(ctx context.Context) ([]ocd.ProcessedVersion, error) {
	var out []ocd.ProcessedVersion
	err := queryRows(ctx, s.db, "SELECT "+versionColumns+" FROM processed_versions ORDER BY id", func(rows *sql.Rows) error {
		v, err := scanVersion(rows)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return out, nil
}

func (s *Store) Version(ctx context.Context, id int64) (ocd.ProcessedVersion, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+versionColumns+" FROM processed_versions WHERE id = ?"), id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ocd.ProcessedVersion{}, &store.NotFoundError{Entity: "processed version", ID: id}
	}
	if err != nil {
		return ocd.ProcessedVersion{}, fmt.Errorf("failed to read version %d: %w", id, err)
	}
	return v, nil
}

func (s *Store) Files(ctx context.Context, versionID int64) ([]ocd.ProcessedFile, error) {
	var out []ocd.ProcessedFile
	err := queryRows(ctx, s.db, s.rebind(`SELECT id, version_id, file_name, kind, process_start, process_finish, records_count
		FROM processed_files WHERE version_id = ? ORDER BY id`), func(rows *sql.Rows) error {
		var (
			f             ocd.ProcessedFile
			kind          string
			start, finish nullTime
		)
		if err := rows.Scan(&f.ID, &f.VersionID, &f.FileName, &kind, &start, &finish, &f.RecordsCount); err != nil {
			return err
		}
		f.Kind = ocd.FileKind(kind)
		f.ProcessStart, f.ProcessFinish = start.Time, finish.Time
		out = append(out, f)
		return nil
	}, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files of version %d: %w", versionID, err)
	}
	return out, nil
}

// StartFile creates the marker or restarts it, clearing finish and count.
func (s *Store) StartFile(ctx context.Context, versionID int64, name string, kind ocd.FileKind, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO processed_files (version_id, file_name, kind, process_start, process_finish, records_count)
		VALUES (?, ?, ?, ?, NULL, 0)
		ON CONFLICT (version_id, file_name, kind)
		DO UPDATE SET process_start = excluded.process_start, process_finish = NULL, records_count = 0`),
		versionID, name, string(kind), ts(now))
	if err != nil {
		return fmt.Errorf("failed to start %s %s: %w", kind, name, err)
	}
	return nil
}

func (s *Store) FinishFile(ctx context.Context, versionID int64, name string, kind ocd.FileKind, now time.Time, count int) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE processed_files SET process_finish = ?, records_count = ?
		WHERE version_id = ? AND file_name = ? AND kind = ?`), ts(now), count, versionID, name, string(kind))
	if err != nil {
		return fmt.Errorf("failed to finish %s %s: %w", kind, name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &store.NotFoundError{Entity: "processed file " + name, ID: versionID}
	}
	return nil
}
