package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocd-calaccess/internal/export"
	"github.com/ocd-calaccess/internal/ocd"
	"github.com/ocd-calaccess/internal/pipeline"
	"github.com/ocd-calaccess/internal/reference"
	"github.com/ocd-calaccess/internal/suggest"
)

// parseRawVersion accepts a date or an RFC 3339 timestamp.
func parseRawVersion(s string) (time.Time, error) {
	if t, err := time.Parse(ocd.DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid raw version %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}

func createProcessCmd() *cobra.Command {
	var (
		rawVersion string
		force      bool
		only       []string
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the processing stages over the loaded raw inputs",
		Long: `Resolve the loaded raw inputs into the canonical graph. Stages that already
finished for the raw version are skipped unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			version := time.Now().UTC().Truncate(24 * time.Hour)
			if rawVersion != "" {
				var err error
				if version, err = parseRawVersion(rawVersion); err != nil {
					return err
				}
			}
			for _, name := range only {
				if !slices.Contains(pipeline.Stages, name) {
					return fmt.Errorf("unknown stage %q (stages: %v)", name, pipeline.Stages)
				}
			}

			ref, err := reference.Load(cfg.ReferencePath)
			if err != nil {
				return err
			}
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}

			p := pipeline.New(s, s, s, ref, log, nil)
			report, err := p.Run(cmd.Context(), pipeline.Options{RawVersion: version, Force: force, Only: only})
			printStageReport(report)
			return err
		},
	}
	cmd.Flags().StringVar(&rawVersion, "raw-version", "", "raw snapshot date (default today, UTC)")
	cmd.Flags().BoolVar(&force, "force", false, "rerun stages that already finished")
	cmd.Flags().StringSliceVar(&only, "only", nil, "run only the named stages")
	return cmd
}

func createExportCmd() *cobra.Command {
	var (
		versionID int64
		dir       string
		noUpload  bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the canonical graph as CSV extracts and archive them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}

			if versionID == 0 {
				versions, err := s.Versions(ctx)
				if err != nil {
					return err
				}
				for _, v := range versions {
					if v.Finished() {
						versionID = v.ID
					}
				}
				if versionID == 0 {
					return fmt.Errorf("no finished processed version to export")
				}
			}

			var uploader export.Uploader
			if cfg.GCSBucket != "" && !noUpload {
				gcs, err := export.NewGCSUploader(ctx, cfg.GCSBucket)
				if err != nil {
					return err
				}
				defer gcs.Close()
				uploader = gcs
			}

			if dir == "" {
				dir = filepath.Join(cfg.ExportDir, fmt.Sprintf("version-%d", versionID))
			}
			res, err := export.New(s, s, uploader, cfg.GCSPrefix, log).ExportAll(ctx, versionID, dir)
			if err != nil {
				return err
			}
			printExportResult(res)
			return nil
		},
	}
	cmd.Flags().Int64Var(&versionID, "version", 0, "processed version id (default latest finished)")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default EXPORT_DIR/version-<id>)")
	cmd.Flags().BoolVar(&noUpload, "no-upload", false, "skip the upload even when GCS_BUCKET is set")
	return cmd
}

func createVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List processed versions and their stage markers",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			versions, err := s.Versions(cmd.Context())
			if err != nil {
				return err
			}
			markers := make(map[int64][]ocd.ProcessedFile, len(versions))
			for _, v := range versions {
				files, err := s.Files(cmd.Context(), v.ID)
				if err != nil {
					return err
				}
				markers[v.ID] = files
			}
			printVersions(versions, markers)
			return nil
		},
	}
}

func createSuggestCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Report persons on the same post with near-identical names",
		Long:  `List person pairs that look like the same candidate but were not merged. Nothing is changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			g, err := s.LoadGraph(cmd.Context())
			if err != nil {
				return err
			}
			printPairs(suggest.NearDuplicates(g.Persons, g.Candidacies, g.Memberships, threshold))
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", suggest.DefaultThreshold, "minimum Jaro-Winkler similarity")
	return cmd
}
