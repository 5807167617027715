package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"llmhost/internal/engine"
	"llmhost/internal/gguf"
	"llmhost/internal/registry"
	"llmhost/pkg/types"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models in the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			models, err := registry.LoadDir(cfg.ModelsDir)
			if err != nil {
				return err
			}
			return printModels(cmd.OutOrStdout(), models, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func printModels(w io.Writer, models []types.Model, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(types.ModelsResponse{Models: models})
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tQUANT\tFAMILY\tLAYERS\tCTX\tPROJECTOR")
	for _, m := range models {
		proj := "-"
		if m.ProjectorPath != "" {
			proj = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", m.ID, dash(m.Quant), dash(m.Family), m.Layers, m.ContextLength, proj)
	}
	return tw.Flush()
}

func newInspectCmd(_ *rootOptions) *cobra.Command {
	var percent int
	cmd := &cobra.Command{
		Use:     "inspect <file.gguf>",
		Short:   "Print GGUF metadata and the GPU layers a load would offload",
		Example: "  llmhostd inspect ~/models/gemma-3-4b-it-Q4_K_M.gguf --gpu-percent 50",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd.OutOrStdout(), args[0], percent)
		},
	}
	cmd.Flags().IntVar(&percent, "gpu-percent", 80, "Offload share used for the layer computation")
	return cmd
}

func inspect(w io.Writer, path string, percent int) error {
	md, err := gguf.ReadMetadata(path)
	if err != nil {
		return err
	}
	name, _ := md.Name()
	arch, _ := md.Architecture()
	blocks, _ := md.BlockCount()
	ctxLen, _ := md.ContextLength()
	_, hasTemplate := md.ChatTemplate()
	plan := engine.PlanOffload(path, percent)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "name\t%s\n", dash(name))
	fmt.Fprintf(tw, "architecture\t%s\n", dash(arch))
	fmt.Fprintf(tw, "quant\t%s\n", dash(registry.QuantFromName(path)))
	fmt.Fprintf(tw, "block_count\t%d\n", blocks)
	fmt.Fprintf(tw, "context_length\t%d\n", ctxLen)
	fmt.Fprintf(tw, "chat_template\t%t\n", hasTemplate)
	if plan.Introspected {
		fmt.Fprintf(tw, "gpu_layers\t%d of %d at %d%%\n", plan.Layers, plan.TotalLayers, percent)
	} else {
		fmt.Fprintf(tw, "gpu_layers\tall (metadata incomplete)\n")
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newDevicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Load backend plugins and list compute devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, closer, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()
			return printDevices(cmd.OutOrStdout(), newEngine(appDeps{log: log}), backendPlugins(cfg.Backends))
		},
	}
}

func printDevices(w io.Writer, eng *engine.Engine, plugins []string) error {
	devs, err := eng.InitBackend(plugins)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tKIND\tDESCRIPTION")
	for i, d := range devs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, d.Name, d.Kind, d.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	info, _ := eng.DeviceInfo()
	sys, _ := eng.SystemInfo()
	fmt.Fprintf(w, "\noffload target: %s\nsystem: %s\n", info, sys)
	return nil
}
