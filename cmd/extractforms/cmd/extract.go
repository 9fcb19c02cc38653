package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Guillaume-Lombardo/extractforms/constants"
	"github.com/Guillaume-Lombardo/extractforms/internal/extract"
	"github.com/Guillaume-Lombardo/extractforms/internal/journal"
	"github.com/Guillaume-Lombardo/extractforms/internal/render"
	"github.com/Guillaume-Lombardo/extractforms/internal/schema"
	"github.com/Guillaume-Lombardo/extractforms/internal/store"
)

var extractFlags struct {
	out            string
	passes         int
	schemaID       string
	schemaPath     string
	backend        string
	noCache        bool
	matchSchema    bool
	dpi            int
	imageFormat    string
	pageStart      int
	pageEnd        int
	maxPages       int
	chunkPages     int
	keepBlankPages bool
	instructions   string
}

var extractCmd = &cobra.Command{
	Use:   "extract [flags] INPUT.pdf [INPUT.pdf...]",
	Short: "Extract form field values from one or more PDFs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractFlags.out, "output", "o", "", "output JSON file (single input) or directory (multiple inputs); default: alongside input")
	f.IntVar(&extractFlags.passes, "passes", 2, "model passes: 1 (combined) or 2 (schema then values)")
	f.StringVar(&extractFlags.schemaID, "schema-id", "", "extract against a cached schema by id (skips inference)")
	f.StringVar(&extractFlags.schemaPath, "schema-path", "", "extract against an external schema file (skips inference)")
	f.StringVar(&extractFlags.backend, "backend", "", "backend override: multimodal or ocr")
	f.BoolVar(&extractFlags.noCache, "no-cache", false, "skip schema cache lookup and store")
	f.BoolVar(&extractFlags.matchSchema, "match-schema", false, "try heuristic matching against cached schemas before inferring")
	f.IntVar(&extractFlags.dpi, "dpi", 0, "render resolution (default from config)")
	f.StringVar(&extractFlags.imageFormat, "image-format", "", "render format: png or jpeg (default from config)")
	f.IntVar(&extractFlags.pageStart, "page-start", 0, "first physical page to process (1-based)")
	f.IntVar(&extractFlags.pageEnd, "page-end", 0, "last physical page to process (inclusive)")
	f.IntVar(&extractFlags.maxPages, "max-pages", 0, "cap on processed pages")
	f.IntVar(&extractFlags.chunkPages, "chunk-pages", 0, "pages per extraction call (0 = whole document)")
	f.BoolVar(&extractFlags.keepBlankPages, "keep-blank-pages", false, "disable blank-page filtering")
	f.StringVar(&extractFlags.instructions, "extra-instructions", "", "extra instructions appended to the model prompts")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mode, err := requestMode()
	if err != nil {
		return err
	}
	backendKind, err := extract.ParseBackendKind(extractFlags.backend)
	if err != nil {
		return err
	}

	cache, err := store.NewFSCache(settings.Cache.Dir, logger)
	if err != nil {
		return err
	}
	backend, resolvedKind, err := extract.BuildBackend(backendKind, settings, nil, logger)
	if err != nil {
		return err
	}
	renderer := render.NewPdftoppm(settings.Render.Pdftoppm)
	orch := extract.NewOrchestrator(settings, renderer, backend, resolvedKind, cache, logger)

	jrnl, err := journal.Open(settings.Journal.Path, logger)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	// One failing document does not stop the batch; the exit code reflects
	// the aggregate.
	failures := 0
	for _, input := range args {
		if err := ctx.Err(); err != nil {
			return err
		}
		outPath, err := outputPath(input, extractFlags.out, len(args) > 1)
		if err != nil {
			return err
		}
		req := extract.Request{
			InputPath:         input,
			OutputPath:        outPath,
			Mode:              mode,
			Backend:           backendKind,
			NoCache:           extractFlags.noCache,
			MatchSchema:       extractFlags.matchSchema,
			DPI:               extractFlags.dpi,
			ImageFormat:       extractFlags.imageFormat,
			PageStart:         extractFlags.pageStart,
			PageEnd:           extractFlags.pageEnd,
			MaxPages:          extractFlags.maxPages,
			ChunkPages:        extractFlags.chunkPages,
			KeepBlankPages:    extractFlags.keepBlankPages,
			SchemaID:          extractFlags.schemaID,
			SchemaPath:        extractFlags.schemaPath,
			ExtraInstructions: extractFlags.instructions,
		}
		if err := runOne(ctx, orch, jrnl, req); err != nil {
			logger.Error("extract.file.failed", "input", input, "error", err)
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d document(s) failed", failures, len(args))
	}
	return nil
}

func runOne(ctx context.Context, orch *extract.Orchestrator, jrnl *journal.Journal, req extract.Request) error {
	fingerprint, fprErr := schema.FingerprintFile(req.InputPath)
	if fprErr != nil {
		return fprErr
	}

	result, err := orch.Run(ctx, req)

	run := journal.Run{
		InputPath:   req.InputPath,
		Fingerprint: fingerprint,
		Mode:        string(req.Mode),
	}
	if err != nil {
		run.Status = constants.RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = constants.RunStatusOK
		if result.Metadata.Degraded {
			run.Status = constants.RunStatusDegraded
		}
		run.Backend = result.Metadata.Backend
		run.Mode = result.Metadata.Mode
		run.CacheHit = result.Metadata.CacheHit
		run.Degraded = result.Metadata.Degraded
		run.FieldsCount = result.SchemaFieldsCount
		run.ModelCalls = result.Metadata.ModelCalls
		run.DurationMS = result.Metadata.DurationMS
		if result.Pricing != nil {
			run.InputTokens = result.Pricing.InputTokens
			run.OutputTokens = result.Pricing.OutputTokens
			run.CostUSD = result.Pricing.TotalCostUSD
		}
	}
	if recErr := jrnl.Record(ctx, run); recErr != nil {
		logger.Warn("journal.record_failed", "input", req.InputPath, "error", recErr)
	}
	if err != nil {
		return err
	}

	if err := extract.WriteResult(result, req.OutputPath); err != nil {
		return err
	}
	logger.Info("extract.file.ok", "input", req.InputPath, "output", req.OutputPath)
	return nil
}

func requestMode() (extract.PassMode, error) {
	if extractFlags.schemaPath != "" || extractFlags.schemaID != "" {
		if extractFlags.schemaPath != "" && extractFlags.schemaID != "" {
			return "", fmt.Errorf("--schema-id and --schema-path are mutually exclusive")
		}
		return extract.OneSchemaPass, nil
	}
	return extract.ParsePassMode(extractFlags.passes)
}

// outputPath resolves where one input's result JSON lands. With multiple
// inputs, --out names a directory.
func outputPath(input, out string, multi bool) (string, error) {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".json"
	if out == "" {
		return filepath.Join(filepath.Dir(input), base), nil
	}
	if multi {
		return filepath.Join(out, base), nil
	}
	return out, nil
}
