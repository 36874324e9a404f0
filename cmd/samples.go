package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/KaramelBytes/twincheck-cli/internal/samplecheck"
	"github.com/KaramelBytes/twincheck-cli/internal/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	samplesSkipRows int
	samplesFormat   string
	samplesOutput   string
)

var samplesCmd = &cobra.Command{
	Use:   "samples <files...>",
	Short: "Screen raw stress-strain sheets for good samples",
	Long: `Check every sheet of the given workbooks (or CSV files): a good sample has a
stress peak before its last row and does not end below the deformation reached
at that peak.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skip := currentConfig().SampleSkipRows
		if cmd.Flags().Changed("skip-rows") {
			skip = samplesSkipRows
		}
		if skip < 0 {
			return fmt.Errorf("--skip-rows must not be negative")
		}
		paths, err := utils.ExpandGlobs(args)
		if err != nil {
			return err
		}
		files := make([]samplecheck.File, 0, len(paths))
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				fmt.Fprintf(os.Stderr, "⚠ Skipped %s: %v\n", p, err)
				files = append(files, samplecheck.File{Name: p, Error: err.Error()})
				continue
			}
			f := samplecheck.CheckFile(p, data, skip)
			if f.Error != "" {
				fmt.Fprintf(os.Stderr, "⚠ Skipped %s: %s\n", p, f.Error)
			}
			files = append(files, f)
		}

		var out []byte
		switch strings.ToLower(samplesFormat) {
		case "", "md", "markdown":
			out = []byte(samplecheck.Markdown(files))
		case "json":
			if out, err = json.MarshalIndent(files, "", "  "); err != nil {
				return fmt.Errorf("marshal json: %w", err)
			}
			out = append(out, '\n')
		case "yaml", "yml":
			if out, err = yaml.Marshal(files); err != nil {
				return fmt.Errorf("marshal yaml: %w", err)
			}
		default:
			return fmt.Errorf("unknown format %q (use md, json or yaml)", samplesFormat)
		}
		if samplesOutput != "" {
			if err := utils.SafeWriteFile(samplesOutput, out); err != nil {
				return err
			}
			fmt.Printf("✓ Sample report written: %s\n", samplesOutput)
		} else {
			fmt.Print(string(out))
		}
		good, total := samplecheck.Good(files)
		fmt.Printf("✓ %d of %d samples look good\n", good, total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(samplesCmd)
	samplesCmd.Flags().IntVar(&samplesSkipRows, "skip-rows", 3, "header rows to skip on every sheet")
	samplesCmd.Flags().StringVar(&samplesFormat, "format", "md", "output format: md|json|yaml")
	samplesCmd.Flags().StringVarP(&samplesOutput, "output", "o", "", "write the report to a file instead of stdout")
}
