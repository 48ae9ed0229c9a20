package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glimpse/internal/inference"
	"github.com/samcharles93/glimpse/internal/model"
	"github.com/samcharles93/glimpse/internal/safetensors"
)

type inspectReport struct {
	Dir       string            `json:"dir"`
	Backend   string            `json:"backend"`
	Device    model.DeviceInfo  `json:"device"`
	Config    model.Config      `json:"config"`
	VocabSize int               `json:"vocab_size"`
	BOS       int               `json:"bos_id"`
	EOS       int               `json:"eos_id"`
	Fallback  bool              `json:"eos_fallback"`
	Tensors   []inspectTensor   `json:"tensors"`
	Prompt    *inspectPromptIDs `json:"prompt,omitempty"`
}

type inspectTensor struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []int  `json:"shape"`
}

type inspectPromptIDs struct {
	Question string `json:"question"`
	IDs      []int  `json:"ids"`
}

func inspectCmd() *cli.Command {
	var (
		question   string
		jsonOutput bool
	)
	return &cli.Command{
		Name:  "inspect",
		Usage: "Print model configuration, weight tensors and special token ids",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "question",
				Aliases:     []string{"q"},
				Usage:       "also print the prompt token ids for this question",
				Destination: &question,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &jsonOutput,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			fileCfg, err := LoadConfig(configFile)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyModelConfig(c, fileCfg)
			cfg, err := engineConfig(ctx, c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
			}
			eng, err := inference.Load(ctx, cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = eng.Close() }()

			report, err := buildInspectReport(eng, question)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if jsonOutput {
				enc := json.NewEncoder(stdout(c))
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return writeInspectReport(stdout(c), report)
		},
	}
}

func buildInspectReport(eng *inference.Engine, question string) (inspectReport, error) {
	info := eng.Info()
	host := model.HostInfo()
	host.Device = info.Device
	r := inspectReport{
		Dir:       info.Artifacts.Dir,
		Backend:   info.Backend,
		Device:    host,
		Config:    info.Model,
		VocabSize: info.VocabSize,
		BOS:       info.Special.BOS,
		EOS:       info.Special.EOS,
		Fallback:  info.Special.Fallback,
	}

	st, err := safetensors.Open(info.Artifacts.Weights)
	if err != nil {
		return r, err
	}
	defer func() { _ = st.Close() }()
	for _, name := range st.Names() {
		t, _ := st.Tensor(name)
		r.Tensors = append(r.Tensors, inspectTensor{Name: name, DType: t.DType, Shape: t.Shape})
	}

	if question != "" {
		ids, err := inference.BuildPrompt(eng.Tokenizer(), question)
		if err != nil {
			return r, err
		}
		r.Prompt = &inspectPromptIDs{Question: question, IDs: ids}
	}
	return r, nil
}

func writeInspectReport(w io.Writer, r inspectReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "model dir:\t%s\n", r.Dir)
	fmt.Fprintf(tw, "model type:\t%s\n", r.Config.ModelType)
	fmt.Fprintf(tw, "backend:\t%s\n", r.Backend)
	fmt.Fprintf(tw, "device:\t%s\n", r.Device)
	fmt.Fprintf(tw, "vocab size:\t%d (config %d)\n", r.VocabSize, r.Config.VocabSize)
	fmt.Fprintf(tw, "hidden size:\t%d\n", r.Config.HiddenSize)
	fmt.Fprintf(tw, "image size:\t%d (patch %d, %d patches)\n", r.Config.ImageSize, r.Config.PatchSize, r.Config.Patches()*r.Config.Patches())
	eos := fmt.Sprintf("%d", r.EOS)
	if r.Fallback {
		eos += " (fallback)"
	}
	fmt.Fprintf(tw, "bos / eos:\t%d / %s\n", r.BOS, eos)
	fmt.Fprintf(tw, "tensors:\t%d\n", len(r.Tensors))
	for _, t := range r.Tensors {
		fmt.Fprintf(tw, "  %s\t%s\t%v\n", t.Name, t.DType, t.Shape)
	}
	if r.Prompt != nil {
		fmt.Fprintf(tw, "prompt ids:\t%v\n", r.Prompt.IDs)
	}
	return tw.Flush()
}
