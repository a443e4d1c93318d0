package main

import (
	"encoding/json"
	"mime"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/internal/pipeline"
)

var (
	analyzeDepth      string
	analyzeOwner      string
	analyzeSkipMarket bool
	analyzeSkipDD     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Analyze a batch of investment documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		batch, err := loadBatch(args)
		if err != nil {
			return err
		}

		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		opts := pipeline.DefaultOptions()
		opts.OwnerID = analyzeOwner
		opts.Depth = model.AnalysisDepth(analyzeDepth)
		opts.IncludeMarketIntelligence = !analyzeSkipMarket
		opts.IncludeDueDiligence = !analyzeSkipDD

		jobID, err := e.Orchestrator.Submit(cmd.Context(), batch, opts)
		if err != nil {
			return eris.Wrap(err, "submit analysis")
		}

		events, err := e.Orchestrator.Subscribe(cmd.Context(), jobID)
		if err != nil {
			return eris.Wrap(err, "subscribe to progress")
		}
		for ev := range events {
			zap.L().Info("progress",
				zap.String("stage", string(ev.Stage)),
				zap.Float64("percent", ev.Percent),
				zap.String("message", ev.Message),
			)
		}

		job, err := e.Orchestrator.GetResult(cmd.Context(), jobID)
		if err != nil {
			return eris.Wrap(err, "fetch result")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(job); err != nil {
			return eris.Wrap(err, "encode result")
		}
		if job.Status == model.JobStatusFailed {
			return eris.Errorf("analysis failed: %s", job.Error)
		}
		return nil
	},
}

// loadBatch reads the named files into uploaded documents, inferring media
// types from extensions.
func loadBatch(paths []string) ([]model.UploadedDocument, error) {
	batch := make([]model.UploadedDocument, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		batch = append(batch, model.UploadedDocument{
			Name:      filepath.Base(path),
			MediaType: mime.TypeByExtension(filepath.Ext(path)),
			SizeBytes: int64(len(content)),
			Content:   content,
		})
	}
	return batch, nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDepth, "depth", "comprehensive", "analysis depth (comprehensive or basic)")
	analyzeCmd.Flags().StringVar(&analyzeOwner, "owner", "", "owner ID recorded on the job")
	analyzeCmd.Flags().BoolVar(&analyzeSkipMarket, "skip-market", false, "skip market intelligence gathering")
	analyzeCmd.Flags().BoolVar(&analyzeSkipDD, "skip-due-diligence", false, "skip due diligence guidance")
	rootCmd.AddCommand(analyzeCmd)
}
