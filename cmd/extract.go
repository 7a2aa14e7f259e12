package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/extraction"
	"github.com/rsg-tillsyn/tillsyn-assist/internal/transcript"
)

var (
	extractMode         string
	extractConversation string
	extractFetch        bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [transcript-file]",
	Short: "Extract project details from a transcript",
	Long: `extract runs the extraction engine over a transcript read from a file, stdin, or
(with --fetch) the voice provider, and prints the record as JSON. Nothing is stored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractMode, "mode", "", "Extraction mode: llm, regex or provider (defaults to the configured mode)")
	extractCmd.Flags().StringVar(&extractConversation, "conversation", "", "Provider conversation id")
	extractCmd.Flags().BoolVar(&extractFetch, "fetch", false, "Fetch the transcript of --conversation from the provider")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if extractMode != "" {
		cfg.Extraction.Mode = extractMode
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var text string
	switch {
	case extractFetch:
		if extractConversation == "" {
			return fmt.Errorf("--fetch requires --conversation")
		}
		entries, err := a.provider.FetchTranscript(ctx, extractConversation)
		if err != nil {
			return err
		}
		text = transcript.Render(entries)
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read transcript: %w", err)
		}
		text = string(data)
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read transcript: %w", err)
		}
		text = string(data)
	}

	in := extraction.Input{ConversationID: extractConversation, Transcript: text}
	projects, err := a.store.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		in.ProjectOptions = append(in.ProjectOptions, extraction.ProjectOption{Number: p.Uppdragsnr, Customer: p.Kund})
	}

	record, err := a.engine.Extract(ctx, in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
