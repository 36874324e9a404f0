package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
	"github.com/KaramelBytes/twincheck-cli/internal/client"
	"github.com/KaramelBytes/twincheck-cli/internal/ingest"
	"github.com/KaramelBytes/twincheck-cli/internal/record"
	"github.com/KaramelBytes/twincheck-cli/internal/report"
	"github.com/KaramelBytes/twincheck-cli/internal/study"
	"github.com/KaramelBytes/twincheck-cli/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cmpVirtual      []string
	cmpReal         []string
	cmpTolerance    float64
	cmpPairOnly     bool
	cmpGroupEpsilon float64
	cmpAlpha        float64
	cmpSheet        string
	cmpFormat       string
	cmpOutput       string
	cmpXLSX         string
	cmpStudy        string
	cmpRemote       string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare virtual test records against real ones",
	Long: `Load virtual and real test tables (CSV or XLSX), match virtual records to real
ones of the same polymer content within a relative tolerance, and report RMSE,
MAE, R², a paired t-test and a quality verdict per mechanical property.`,
	Example: `  twincheck compare --virtual sim/*.xlsx --real lab.xlsx
  twincheck compare --virtual v.csv --real r.csv --tolerance 10 --pair-only --format json -o report.json
  twincheck compare --virtual v.csv --real r.csv --study fiber-2024 --xlsx report.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := currentConfig()
		opt := analysis.Options{
			Tolerance:    c.TolerancePercent,
			PairOnly:     c.PairOnly,
			GroupEpsilon: c.GroupEpsilon,
			Alpha:        c.Alpha,
		}
		f := cmd.Flags()
		if f.Changed("tolerance") {
			opt.Tolerance = cmpTolerance
		}
		if f.Changed("pair-only") {
			opt.PairOnly = cmpPairOnly
		}
		if f.Changed("group-epsilon") {
			opt.GroupEpsilon = cmpGroupEpsilon
		}
		if f.Changed("alpha") {
			opt.Alpha = cmpAlpha
		}
		if err := checkOptions(opt); err != nil {
			return err
		}
		sheet := c.ResultsSheet
		if f.Changed("sheet") {
			sheet = cmpSheet
		}
		if err := analysis.CheckFormat(cmpFormat); err != nil {
			return err
		}

		virtPaths, err := utils.ExpandGlobs(cmpVirtual)
		if err != nil {
			return fmt.Errorf("--virtual: %w", err)
		}
		realPaths, err := utils.ExpandGlobs(cmpReal)
		if err != nil {
			return fmt.Errorf("--real: %w", err)
		}
		if len(virtPaths) == 0 || len(realPaths) == 0 {
			return fmt.Errorf("at least one --virtual and one --real input is required")
		}
		virtUnits := ingest.FromFiles(virtPaths)
		realUnits := ingest.FromFiles(realPaths)

		var rep *analysis.Report
		if cmpRemote != "" {
			rep, err = compareRemote(cmd.Context(), virtUnits, realUnits, sheet, opt)
		} else {
			rep, err = compareLocal(virtUnits, realUnits, sheet, opt)
		}
		if err != nil {
			if errors.Is(err, analysis.ErrNoMatches) {
				fmt.Fprintln(os.Stderr, "✗ No virtual record matched a real record; try a larger --tolerance or --group-epsilon")
			}
			return err
		}

		out, err := rep.Render(cmpFormat)
		if err != nil {
			return err
		}
		if cmpOutput != "" {
			if err := utils.SafeWriteFile(cmpOutput, out); err != nil {
				return err
			}
			fmt.Printf("✓ Report written: %s\n", cmpOutput)
		} else {
			fmt.Print(string(out))
		}
		if cmpXLSX != "" {
			var buf bytes.Buffer
			if err := report.WriteAnalysis(&buf, rep); err != nil {
				return err
			}
			if err := utils.SafeWriteFile(cmpXLSX, buf.Bytes()); err != nil {
				return err
			}
			fmt.Printf("✓ Workbook written: %s\n", cmpXLSX)
		}
		if cmpStudy != "" {
			if err := recordRun(cmpStudy, rep); err != nil {
				return err
			}
		}
		fmt.Printf("✓ Matched %d of %d virtual records (%d lost)\n", rep.Matched, rep.TotalVirtual, rep.Lost)
		return nil
	},
}

func compareLocal(virtUnits, realUnits []ingest.Unit, sheet string, opt analysis.Options) (*analysis.Report, error) {
	iopt := ingest.Options{Sheet: sheet, Logger: logger}
	virt, vres := ingest.Load(virtUnits, record.Virtual, iopt)
	reals, rres := ingest.Load(realUnits, record.Real, iopt)
	inputs := append(vres, rres...)
	for _, in := range inputs {
		if !in.OK() {
			fmt.Fprintf(os.Stderr, "⚠ Skipped %s input %s: %s\n", in.Origin, in.Name, in.Error)
		}
	}
	if err := ingest.Check(record.Virtual, vres); err != nil {
		return nil, err
	}
	if err := ingest.Check(record.Real, rres); err != nil {
		return nil, err
	}
	rep, err := analysis.Run(virt, reals, opt)
	if err != nil {
		return nil, err
	}
	rep.Inputs = inputs
	logger.Debug("comparison done",
		zap.String("run", rep.ID),
		zap.Int("virtual", len(virt)),
		zap.Int("real", len(reals)),
		zap.Int("matched", rep.Matched))
	return rep, nil
}

func compareRemote(ctx context.Context, virtUnits, realUnits []ingest.Unit, sheet string, opt analysis.Options) (*analysis.Report, error) {
	c := currentConfig()
	cl := client.NewClient(cmpRemote,
		time.Duration(c.HTTPTimeoutSec)*time.Second,
		c.RetryMaxAttempts,
		time.Duration(c.RetryBaseDelayMs)*time.Millisecond,
		time.Duration(c.RetryMaxDelayMs)*time.Millisecond)
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Debug("remote comparison", zap.String("url", cmpRemote))
	rep, err := cl.Compare(ctx, virtUnits, realUnits, sheet, opt)
	if err != nil {
		return nil, err
	}
	for _, in := range rep.Inputs {
		if in.Error != "" {
			fmt.Fprintf(os.Stderr, "⚠ Skipped %s input %s: %s\n", in.Origin, in.Name, in.Error)
		}
	}
	return rep, nil
}

// checkOptions rejects settings the matcher cannot work with, whether they
// came from flags or the config file.
func checkOptions(opt analysis.Options) error {
	finite := func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
	if !finite(opt.Tolerance) || opt.Tolerance < 0 {
		return fmt.Errorf("tolerance must be a finite, non-negative number, got %v", opt.Tolerance)
	}
	if !finite(opt.GroupEpsilon) || opt.GroupEpsilon < 0 {
		return fmt.Errorf("group epsilon must be a finite, non-negative number, got %v", opt.GroupEpsilon)
	}
	if math.IsNaN(opt.Alpha) || opt.Alpha <= 0 || opt.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0, 1), got %v", opt.Alpha)
	}
	return nil
}

func recordRun(name string, rep *analysis.Report) error {
	dir, err := resolveStudyDirByName(name)
	if err != nil {
		return err
	}
	s, err := study.Load(dir)
	if err != nil {
		return fmt.Errorf("%w (create it with: twincheck init %s)", err, name)
	}
	run, err := s.AddRun(rep)
	if err != nil {
		return err
	}
	if err := s.Save(); err != nil {
		return err
	}
	fmt.Printf("✓ Run %s recorded in study %s (%s)\n", run.ID, name, filepath.Join(dir, run.Report))
	return nil
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringArrayVar(&cmpVirtual, "virtual", nil, "virtual test file or glob (repeatable)")
	compareCmd.Flags().StringArrayVar(&cmpReal, "real", nil, "real test file or glob (repeatable)")
	compareCmd.Flags().Float64Var(&cmpTolerance, "tolerance", 15, "match tolerance: summed percent deviation from the virtual value, fiber content in absolute points")
	compareCmd.Flags().BoolVar(&cmpPairOnly, "pair-only", false, "use each real record at most once")
	compareCmd.Flags().Float64Var(&cmpGroupEpsilon, "group-epsilon", 0, "treat polymer contents within this distance as one group")
	compareCmd.Flags().Float64Var(&cmpAlpha, "alpha", 0.05, "significance level for the paired t-test")
	compareCmd.Flags().StringVar(&cmpSheet, "sheet", "", "preferred XLSX sheet name (default from config)")
	compareCmd.Flags().StringVar(&cmpFormat, "format", "md", "report format: md|json|yaml")
	compareCmd.Flags().StringVarP(&cmpOutput, "output", "o", "", "write the report to a file instead of stdout")
	compareCmd.Flags().StringVar(&cmpXLSX, "xlsx", "", "also write an XLSX workbook")
	compareCmd.Flags().StringVar(&cmpStudy, "study", "", "record the run in this study")
	compareCmd.Flags().StringVar(&cmpRemote, "remote", "", "run the comparison on a twincheck server at this URL")
}
