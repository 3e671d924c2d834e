package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"triage_server/adapter/in/http"
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/internal/bootstrap"
	"triage_server/pkg/logger"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [files...]",
		Short: "Classify text or files and print the result as JSON",
		Long: `Classify pasted text or one or more .txt/.pdf files with the same pipeline the
HTTP API uses and print the JSON array to stdout.

Examples:
  triage classify --text "Preciso do status do chamado 1234"
  triage classify email1.txt email2.pdf`,
		RunE: runClassify,
	}

	cmd.Flags().StringP("text", "t", "", "Email text to classify")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	text, _ := cmd.Flags().GetString("text")

	req := in.TriageRequest{Text: text}
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		req.Uploads = append(req.Uploads, domain.Upload{
			Filename: filepath.Base(path),
			Data:     data,
		})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout stays valid JSON.
	log := logger.New(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Output:  os.Stderr,
		Console: true,
		Service: "triage-cli",
	})
	logger.Init(logger.Config{Level: logger.LevelWarn, Output: os.Stderr, Service: "triage-cli"})

	deps, cleanup, err := bootstrap.NewDependenciesWithLogger(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	outcomes, err := deps.TriageService.Process(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(http.ToItemResponses(outcomes))
}
