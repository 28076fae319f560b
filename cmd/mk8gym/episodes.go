package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/api"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/database"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/logging"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/storage"
	gormstorage "github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/gorm"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/memory"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// openReader connects to the recording database: Postgres when reachable,
// else the SQLite file of the sqlite backend.
func openReader() (storage.Reader, func(), error) {
	zl := logging.NewZerolog(nil, viper.GetString("logLevel"))
	m := database.NewManager(zl, config.GetDBConfig(), config.GetStorageConfig().SQLite.Path)
	if err := m.Connect(); err != nil {
		return nil, nil, err
	}
	if err := m.Setup(); err != nil {
		_ = m.Close()
		return nil, nil, err
	}
	return gormstorage.New(gormstorage.Dependencies{DB: m.DB}), func() { _ = m.Close() }, nil
}

func runEpisodesList(cmd *cobra.Command, _ []string) error {
	instance, _ := cmd.Flags().GetString("instance")
	limit, _ := cmd.Flags().GetInt("limit")

	r, closeDB, err := openReader()
	if err != nil {
		return err
	}
	defer closeDB()
	return listEpisodes(cmd.Context(), r, cmd.OutOrStdout(), instance, limit)
}

func listEpisodes(ctx context.Context, r storage.Reader, w io.Writer, instance string, limit int) error {
	eps, err := r.ListEpisodes(ctx, instance, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tINSTANCE\tMODE\tTRACK\tSTARTED\tSTEPS\tDURATION\tOUTCOME")
	for _, ep := range eps {
		md := ep.Metadata()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			md.EpisodeID, md.InstanceID, md.Mode, trackLabel(md),
			ep.StartedAt.Local().Format(time.DateTime), md.Steps,
			md.Duration.Round(time.Millisecond), md.Outcome)
	}
	return tw.Flush()
}

func trackLabel(md core.ExportMetadata) string {
	if md.TrackName == "" {
		return "-"
	}
	return md.TrackName
}

func runEpisodesExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	compress, _ := cmd.Flags().GetBool("compress")
	if out == "" {
		out = config.GetStorageConfig().Memory.OutputDir
	}

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	r, closeDB, err := openReader()
	if err != nil {
		return err
	}
	defer closeDB()

	paths, err := exportEpisodes(cmd.Context(), r, ids, out, compress)
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return err
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid episode id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// exportEpisodes writes one export file per episode and returns the paths
// written before the first failure.
func exportEpisodes(ctx context.Context, r storage.Reader, ids []uuid.UUID, dir string, compress bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	var paths []string
	for _, id := range ids {
		ep, steps, err := r.LoadEpisode(ctx, id)
		if err != nil {
			return paths, err
		}
		p, err := memory.WriteExport(dir, memory.BuildExport(ep, steps), compress)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func runEpisodesUpload(cmd *cobra.Command, args []string) error {
	ac := config.GetAPIConfig()
	if ac.APIKey == "" {
		return fmt.Errorf("api.apiKey is not set")
	}
	client := api.New(ac.ServerURL, ac.APIKey)
	defer client.Close()
	return uploadExports(client, cmd.OutOrStdout(), args)
}

type uploader interface {
	Upload(filePath string, meta core.ExportMetadata) error
}

// uploadExports reads the metadata of each export file and uploads it.
func uploadExports(u uploader, w io.Writer, files []string) error {
	for _, f := range files {
		data, err := memory.ReadExport(f)
		if err != nil {
			return err
		}
		if err := u.Upload(f, data.Metadata); err != nil {
			return fmt.Errorf("uploading %s: %w", f, err)
		}
		fmt.Fprintf(w, "uploaded %s (%s)\n", f, data.Metadata.EpisodeID)
	}
	return nil
}
