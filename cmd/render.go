package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/document"
)

var (
	renderFormat string
	renderOutput string
)

var renderCmd = &cobra.Command{
	Use:   "render <case-id>",
	Short: "Render the inspection notice of a case",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVar(&renderFormat, "format", "html", "Output format: html or text")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Write to this file instead of stdout")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	caseID := args[0]
	c, err := a.store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	responses, err := a.store.ListChecklistResponses(ctx, caseID)
	if err != nil {
		return err
	}
	defects, err := a.store.ListDefects(ctx, caseID)
	if err != nil {
		return err
	}

	doc := document.Build(c, responses, defects, time.Now())

	var w io.Writer = cmd.OutOrStdout()
	if renderOutput != "" {
		f, err := os.Create(renderOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch renderFormat {
	case "html":
		return document.RenderHTML(w, doc)
	case "text":
		return document.RenderText(w, doc)
	default:
		return fmt.Errorf("unsupported format %q", renderFormat)
	}
}
