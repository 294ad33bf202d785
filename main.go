package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tablemap/internal/config"
	"tablemap/internal/importer"
	"tablemap/internal/service"
	"tablemap/internal/storage"
)

var (
	cfgFile string
	dbPath  string

	cfg    *config.Config
	svc    *service.ImportService
	engine *importer.Engine
	db     *storage.DB
)

var rootCmd = &cobra.Command{
	Use:   "tablemap",
	Short: "tablemap imports structured data into schema-inferred tables and typed content",
	Long: `tablemap fetches records from HTTP APIs, JSON files and databases,
infers a column schema and field mapping from the first record, and
writes the batch into a local table or typed content entries.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()

		db, err = storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}

		engine = &importer.Engine{
			Tables:  storage.NewTableStore(db),
			Content: storage.NewContentStore(db),
		}
		svc = service.NewImportService(storage.NewJobStore(db), engine)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		svc.Stop()
		db.Close()
	},
}

// ── sources ────────────────────────────────────────────────

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the available source types",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tLABEL\tCONFIG")
		for _, spec := range svc.ListSources() {
			var keys []string
			for _, f := range spec.ConfigFields {
				k := f.Key
				if f.Required {
					k += "*"
				}
				keys = append(keys, k)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Type, spec.Label, strings.Join(keys, ","))
		}
		w.Flush()
	},
}

// ── jobs ───────────────────────────────────────────────────

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage import jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := svc.ListJobs()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSOURCE\tTARGET\tTRIGGER\tSTATUS")
		for _, j := range jobs {
			target := fmt.Sprintf("%s:%s", j.TargetKind, j.TargetName)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				j.ID, j.Name, j.SourceType, target, j.TriggerType, j.LastStatus)
		}
		return w.Flush()
	},
}

var createInput service.CreateJobInput
var createSourceConfig string
var createDetectImages bool
var createMaxDepth int

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an import job",
	RunE: func(cmd *cobra.Command, args []string) error {
		if createSourceConfig != "" {
			if err := json.Unmarshal([]byte(createSourceConfig), &createInput.SourceConfig); err != nil {
				return fmt.Errorf("parse --source-config: %w", err)
			}
		}
		if cmd.Flags().Changed("detect-images") {
			createInput.DetectImages = &createDetectImages
		}
		if cmd.Flags().Changed("max-depth") {
			createInput.MaxDepth = &createMaxDepth
		}
		if createInput.PKName == "" {
			createInput.PKName = cfg.PKName
		}

		job, err := svc.CreateJob(cmd.Context(), createInput)
		if err != nil {
			return err
		}
		fmt.Println(job.ID)
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a job now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.RunJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("read %d, written %d, skipped %d\n",
			result.RowsRead, result.RowsWritten, result.Skipped)
		return nil
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its run logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return svc.DeleteJob(cmd.Context(), args[0])
	},
}

var jobsLogsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "Show recent runs of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logs, err := svc.ListRunLogs(args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tSTATUS\tREAD\tWRITTEN\tERROR")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				l.StartedAt.Format(time.RFC3339), l.Status, l.RowsRead, l.RowsWritten, l.Error)
		}
		return w.Flush()
	},
}

// ── preview ────────────────────────────────────────────────

var previewSourceType string
var previewSourceConfig string

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Fetch a sample and show the derived schema and mapping",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.PreviewSource(cmd.Context(), previewSourceType, previewSourceConfig)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// ── import ─────────────────────────────────────────────────

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run a one-shot import without saving a job",
	RunE: func(cmd *cobra.Command, args []string) error {
		if createSourceConfig != "" {
			if err := json.Unmarshal([]byte(createSourceConfig), &createInput.SourceConfig); err != nil {
				return fmt.Errorf("parse --source-config: %w", err)
			}
		}
		if createInput.PKName == "" {
			createInput.PKName = cfg.PKName
		}

		job := &importer.Job{
			SourceType:   createInput.SourceType,
			SourceCfg:    createInput.SourceConfig,
			TargetKind:   importer.TargetKind(createInput.TargetKind),
			TargetName:   createInput.TargetName,
			UniqueField:  createInput.UniqueField,
			PKName:       createInput.PKName,
			TitleField:   createInput.TitleField,
			ContentField: createInput.ContentField,
			DetectImages: createDetectImages,
			MaxDepth:     createMaxDepth,
			SyncMode:     importer.SyncMode(createInput.SyncMode),
		}
		result, err := engine.Run(cmd.Context(), job)
		if err != nil {
			return err
		}
		fmt.Printf("read %d, written %d, skipped %d\n",
			result.RowsRead, result.RowsWritten, result.Skipped)
		return nil
	},
}

// ── watch ──────────────────────────────────────────────────

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Arm schedule and file-watch triggers and run until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		svc.RestartWatchers(ctx)
		log.Info().Msg("triggers armed, waiting")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		svc.WaitRunning(shutdownCtx)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tablemap.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the local database")

	for _, cmd := range []*cobra.Command{jobsCreateCmd, importCmd} {
		f := cmd.Flags()
		f.StringVar(&createInput.SourceType, "source", "", "source type (see: tablemap sources)")
		f.StringVar(&createSourceConfig, "source-config", "", "source configuration as JSON")
		f.StringVar(&createInput.TargetKind, "kind", "table", "target kind: table or content")
		f.StringVar(&createInput.TargetName, "target", "", "target table or content type name")
		f.StringVar(&createInput.UniqueField, "unique-field", "", "field used to match existing entries on upsert")
		f.StringVar(&createInput.PKName, "pk", "", "primary key field name")
		f.StringVar(&createInput.TitleField, "title-field", "", "source field mapped to the title")
		f.StringVar(&createInput.ContentField, "content-field", "", "source field mapped to the content body")
		f.BoolVar(&createDetectImages, "detect-images", true, "detect image URLs as image fields")
		f.IntVar(&createMaxDepth, "max-depth", 3, "maximum repeater nesting depth")
		f.StringVar(&createInput.SyncMode, "mode", "append", "sync mode: append or upsert")
		cobra.CheckErr(cmd.MarkFlagRequired("source"))
		cobra.CheckErr(cmd.MarkFlagRequired("target"))
	}
	cf := jobsCreateCmd.Flags()
	cf.StringVar(&createInput.Name, "name", "", "job name")
	cf.StringVar(&createInput.TriggerType, "trigger", "manual", "trigger: manual, schedule or file_watch")
	cf.StringVar(&createInput.TriggerConfig, "trigger-config", "", "cron expression or watched file path")
	cf.BoolVar(&createInput.Enabled, "enabled", true, "enable the job's trigger")

	previewCmd.Flags().StringVar(&previewSourceType, "source", "", "source type")
	previewCmd.Flags().StringVar(&previewSourceConfig, "source-config", "", "source configuration as JSON")
	cobra.CheckErr(previewCmd.MarkFlagRequired("source"))

	jobsCmd.AddCommand(jobsListCmd, jobsCreateCmd, jobsRunCmd, jobsDeleteCmd, jobsLogsCmd)
	rootCmd.AddCommand(sourcesCmd, jobsCmd, previewCmd, importCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
