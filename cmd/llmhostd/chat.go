package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmhost/internal/engine"
	"llmhost/internal/manager"
	"llmhost/pkg/types"
)

// chatOptions configure one interactive session.
type chatOptions struct {
	model       string
	system      string
	gpuPercent  int
	maxTokens   int
	temperature float64
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	co := chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a local model in the terminal",
		Long: "Loads a model from the models directory and starts an interactive chat.\n" +
			"Ctrl-C stops the current answer; /reset clears the history, /perf prints throughput, /quit exits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if co.model == "" {
				co.model = cfg.DefaultModel
			}
			// keep llama.cpp chatter out of the conversation unless asked for
			if opts.logLevel == "" {
				cfg.Log.Level = "warn"
			}
			log, closer, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()
			mgr, err := buildManager(cfg, appDeps{log: log})
			if err != nil {
				return err
			}
			defer mgr.Unload()

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt)
			defer signal.Stop(sigs)
			return runChat(cmd.Context(), mgr, cmd.InOrStdin(), cmd.OutOrStdout(), sigs, co, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&co.model, "model", "", "Model id (defaults to default_model)")
	f.StringVar(&co.system, "system", "", "Optional system prompt")
	f.IntVar(&co.gpuPercent, "gpu-percent", -1, "GPU offload percent (default from config)")
	f.IntVar(&co.maxTokens, "max-tokens", 0, "Maximum tokens per answer (0 = 2048)")
	f.Float64Var(&co.temperature, "temperature", 0.7, "Sampling temperature")
	return cmd
}

var (
	userColor      = color.New(color.FgCyan, color.Bold)
	assistantColor = color.New(color.FgGreen)
	noticeColor    = color.New(color.FgYellow)
)

// runChat reads one user turn per line from in until EOF or /quit. Each
// value received on interrupts cancels the answer being generated.
func runChat(ctx context.Context, mgr *manager.Manager, in io.Reader, out io.Writer, interrupts <-chan os.Signal, co chatOptions, log zerolog.Logger) error {
	noticeColor.Fprintf(out, "loading %s...\n", co.model)
	info, err := mgr.EnsureModel(ctx, co.model, co.gpuPercent)
	if err != nil {
		return err
	}
	noticeColor.Fprintf(out, "%s ready (%d GPU layers, ctx %d)\n", info.ID, info.GPULayers, info.ContextSize)

	go func() {
		for range interrupts {
			if err := mgr.Cancel(); err != nil {
				log.Warn().Err(err).Msg("cancel")
			}
		}
	}()

	var history []types.ChatMessage
	if co.system != "" {
		history = append(history, types.ChatMessage{Role: "system", Content: co.system})
	}
	base := len(history)
	sc := bufio.NewScanner(in)
	for {
		userColor.Fprint(out, "you> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			history = history[:base]
			noticeColor.Fprintln(out, "history cleared")
			continue
		case "/perf":
			perf, _ := mgr.Engine().PerformanceInfo()
			noticeColor.Fprintln(out, perf)
			continue
		}

		history = append(history, types.ChatMessage{Role: "user", Content: line})
		temp := co.temperature
		req := types.ChatRequest{Model: info.ID, Messages: history, MaxTokens: co.maxTokens, Temperature: &temp, GPUOffloadPercent: gpuPtr(co.gpuPercent)}
		assistantColor.Fprint(out, "assistant> ")
		c, err := mgr.Generate(ctx, req, func(p engine.ProgressEvent) {
			if p.Text != "" {
				assistantColor.Fprint(out, p.Text)
			}
		})
		fmt.Fprintln(out)
		if err != nil {
			// drop the unanswered turn
			history = history[:len(history)-1]
			noticeColor.Fprintf(out, "error: %v\n", err)
			if engine.IsFault(err) {
				noticeColor.Fprintln(out, "the model crashed and will be reloaded on the next message")
			}
			continue
		}
		history = append(history, types.ChatMessage{Role: "assistant", Content: c.Content})
		switch c.FinishReason {
		case manager.FinishLength:
			noticeColor.Fprintln(out, "[truncated at max tokens]")
		case manager.FinishCancelled:
			noticeColor.Fprintln(out, "[stopped]")
		case manager.FinishDecodeError:
			noticeColor.Fprintln(out, "[cut short by a decode error]")
		}
	}
}

func gpuPtr(p int) *int {
	if p < 0 {
		return nil
	}
	return &p
}
