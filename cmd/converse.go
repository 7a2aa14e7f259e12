package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/conversation"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

var (
	converseAgent  string
	converseInput  string
	converseOutput string
	converseCase   string
	converseLimit  time.Duration
)

var converseCmd = &cobra.Command{
	Use:   "converse",
	Short: "Hold one voice conversation and store its outcome",
	Long: `converse streams an audio file to the voice agent as the microphone, collects the
transcript, and on hang-up runs extraction and persistence. Press Ctrl-C to hang up.`,
	Args: cobra.NoArgs,
	RunE: runConverse,
}

func init() {
	converseCmd.Flags().StringVar(&converseAgent, "agent", "", "Agent id (defaults to the configured default agent)")
	converseCmd.Flags().StringVarP(&converseInput, "input", "i", "", "WAV or raw PCM16 file used as the microphone")
	converseCmd.Flags().StringVarP(&converseOutput, "output", "o", "", "Write the agent's voice to this WAV file")
	converseCmd.Flags().StringVar(&converseCase, "case", "", "Case id to select; its defects are analyzed after the call")
	converseCmd.Flags().DurationVar(&converseLimit, "max-duration", 10*time.Minute, "Hang up after this long")
	_ = converseCmd.MarkFlagRequired("input")
}

func runConverse(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	agentID := converseAgent
	if agentID == "" {
		agentID = cfg.Voice.DefaultAgent
	}
	agent, ok := cfg.AgentByID(agentID)
	if !ok {
		return fmt.Errorf("unknown agent %q", agentID)
	}

	if converseCase != "" {
		c, err := a.store.GetCase(ctx, converseCase)
		if err != nil {
			return err
		}
		a.selection.Select(c)
	}

	runner, closeOutput, err := a.newRunner(converseInput, converseOutput, true)
	if err != nil {
		return err
	}
	defer closeOutput()

	if err := runner.Start(ctx, agent.ID); err != nil {
		return err
	}
	log.Info("Talking to agent", logger.String("agent", agent.Name))

	limit, cancel := context.WithTimeout(ctx, converseLimit)
	defer cancel()

	waitCtx := context.Background()
	select {
	case <-limit.Done():
		log.Info("Hanging up")
		stopCtx, cancelStop := context.WithTimeout(waitCtx, 10*time.Second)
		defer cancelStop()
		if err := runner.Stop(stopCtx); err != nil {
			log.Warn("Failed to end session", logger.Error(err))
		}
	case <-waitDone(runner):
	}

	result, err := runner.Wait(waitCtx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// waitDone closes when the runner's conversation has ended on its own
func waitDone(r *conversation.Runner) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Wait(context.Background())
	}()
	return done
}
