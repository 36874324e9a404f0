package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
	"github.com/KaramelBytes/twincheck-cli/internal/curve"
	"github.com/KaramelBytes/twincheck-cli/internal/study"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/xuri/excelize/v2"
)

const header = "polymer_percent;fiber_percent;E_modulus;max_force;strength;elongation\n"

// resetFlags puts every flag of c and its children back to its default so
// Changed state does not leak between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execCmd(args ...string) error {
	resetFlags(rootCmd)
	cfg = nil
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) {
	t.Helper()
	if err := execCmd(args...); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

func tempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	oldHome := os.Getenv("HOME")
	t.Cleanup(func() {
		os.Setenv("HOME", oldHome)
		cfg = nil
	})
	os.Setenv("HOME", home)
	return home
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestCLI_InitCompareList(t *testing.T) {
	home := tempHome(t)
	virt := writeFile(t, filepath.Join(home, "virt.csv"), header+"20;70;240;100;500;5\n20;72;250;120;540;6\n")
	writeFile(t, filepath.Join(home, "real.csv"), header+"20;70;238;101;505;5\n20;72;252;118;535;6\n")
	out := filepath.Join(home, "report.json")
	xlsx := filepath.Join(home, "report.xlsx")

	runCmd(t, "init", "itest", "-d", "integration test")
	runCmd(t, "compare", "--virtual", virt, "--real", filepath.Join(home, "real*.csv"),
		"--pair-only", "--format", "json", "-o", out, "--xlsx", xlsx, "--study", "itest")

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var rep analysis.Report
	if err := json.Unmarshal(b, &rep); err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if rep.Matched != 2 || rep.Lost != 0 || !rep.PairOnly {
		t.Fatalf("unexpected report: matched=%d lost=%d pair_only=%t", rep.Matched, rep.Lost, rep.PairOnly)
	}
	if len(rep.Inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(rep.Inputs))
	}

	f, err := excelize.OpenFile(xlsx)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	if got := f.GetSheetList(); len(got) == 0 || got[0] != "Summary" {
		t.Fatalf("unexpected sheets: %v", got)
	}

	s, err := study.Load(filepath.Join(home, ".twincheck", "studies", "itest"))
	if err != nil {
		t.Fatalf("load study: %v", err)
	}
	if len(s.Runs) != 1 || s.Runs[0].ID != rep.ID {
		t.Fatalf("run not recorded: %+v", s.Runs)
	}
	md, err := os.ReadFile(filepath.Join(s.RootDir(), s.Runs[0].Report))
	if err != nil {
		t.Fatalf("read run report: %v", err)
	}
	if !strings.Contains(string(md), "[METRICS]") {
		t.Fatalf("run report missing metrics section")
	}

	runCmd(t, "list", "--studies")
	runCmd(t, "list", "--runs", "-s", "itest")
}

func TestCLI_InitRefusesExistingStudy(t *testing.T) {
	tempHome(t)
	runCmd(t, "init", "dup")
	if err := execCmd("init", "dup"); err == nil {
		t.Fatalf("expected error for existing study")
	}
	if err := execCmd("init", "../escape"); err == nil {
		t.Fatalf("expected error for invalid study name")
	}
}

func TestCLI_CompareNoMatches(t *testing.T) {
	home := tempHome(t)
	virt := writeFile(t, filepath.Join(home, "v.csv"), header+"20;70;240;100;500;5\n")
	reals := writeFile(t, filepath.Join(home, "r.csv"), header+"30;70;240;100;500;5\n")
	err := execCmd("compare", "--virtual", virt, "--real", reals, "-o", filepath.Join(home, "out.md"))
	if !errors.Is(err, analysis.ErrNoMatches) {
		t.Fatalf("expected ErrNoMatches, got %v", err)
	}
}

func TestCLI_CompareSkipsBadUnits(t *testing.T) {
	home := tempHome(t)
	virt := writeFile(t, filepath.Join(home, "v.csv"), header+"20;70;240;100;500;5\n")
	broken := writeFile(t, filepath.Join(home, "broken.csv"), "fiber_percent\n70\n")
	reals := writeFile(t, filepath.Join(home, "r.csv"), header+"20;70;240;100;500;5\n")
	out := filepath.Join(home, "out.json")

	runCmd(t, "compare", "--virtual", virt, "--virtual", broken, "--real", reals, "--format", "json", "-o", out)
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(b), "missing columns") {
		t.Fatalf("expected per-unit error in report, got:\n%s", b)
	}

	if err := execCmd("compare", "--virtual", broken, "--real", reals); err == nil {
		t.Fatalf("expected error when no virtual input is usable")
	}
	if err := execCmd("compare", "--virtual", virt, "--real", reals, "--format", "pdf"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestCLI_CompareRejectsNonFiniteOptions(t *testing.T) {
	home := tempHome(t)
	virt := writeFile(t, filepath.Join(home, "v.csv"), header+"20;70;240;100;500;5\n")
	reals := writeFile(t, filepath.Join(home, "r.csv"), header+"20;70;240;100;500;5\n")
	for _, flag := range [][]string{
		{"--tolerance", "NaN"},
		{"--tolerance", "Inf"},
		{"--group-epsilon", "NaN"},
		{"--alpha", "NaN"},
	} {
		args := append([]string{"compare", "--virtual", virt, "--real", reals, "-o", filepath.Join(home, "out.md")}, flag...)
		if err := execCmd(args...); err == nil {
			t.Fatalf("expected error for %v", flag)
		}
	}
}

func TestCompare_ToleranceHelpNamesVirtualBase(t *testing.T) {
	usage := compareCmd.Flags().Lookup("tolerance").Usage
	if !strings.Contains(usage, "virtual value") || strings.Contains(usage, "real value") {
		t.Fatalf("tolerance help describes the wrong base: %q", usage)
	}
}

func TestCheckOptions(t *testing.T) {
	if err := checkOptions(analysis.DefaultOptions()); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
	for _, opt := range []analysis.Options{
		{Tolerance: math.NaN(), Alpha: 0.05},
		{Tolerance: math.Inf(1), Alpha: 0.05},
		{Tolerance: -1, Alpha: 0.05},
		{Tolerance: 15, GroupEpsilon: math.NaN(), Alpha: 0.05},
		{Tolerance: 15, Alpha: math.NaN()},
		{Tolerance: 15, Alpha: 1},
	} {
		if err := checkOptions(opt); err == nil {
			t.Fatalf("expected error for %+v", opt)
		}
	}
}

func TestCLI_Samples(t *testing.T) {
	home := tempHome(t)
	f := excelize.NewFile()
	defer f.Close()
	data := [][]interface{}{{"hdr"}, {"hdr"}, {"hdr"}, {0, 0}, {1, 10}, {2, 4}}
	for i, row := range data {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	book := filepath.Join(home, "batch.xlsx")
	if err := f.SaveAs(book); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	out := filepath.Join(home, "samples.json")

	runCmd(t, "samples", book, "--format", "json", "-o", out)
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var files []map[string]any
	if err := json.Unmarshal(b, &files); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one file, got %d", len(files))
	}
	sheets := files[0]["sheets"].([]any)
	if good := sheets[0].(map[string]any)["is_good_sample"]; good != true {
		t.Fatalf("expected a good sample, got %v", good)
	}
}

func TestCLI_Generate(t *testing.T) {
	home := tempHome(t)
	var b strings.Builder
	b.WriteString("Deformation;Standard_Stress\n")
	for i := 0; i < 30; i++ {
		e := float64(i) * 0.05
		b.WriteString(fmt.Sprintf("%.2f;%.3f\n", e, curve.Physics(curve.DefaultParams(), e)-5*e))
	}
	src := writeFile(t, filepath.Join(home, "curve.csv"), b.String())
	out := filepath.Join(home, "curves.xlsx")

	runCmd(t, "generate", src, "--samples", "2", "--points", "50", "--seed", "7", "-o", out)
	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	if got := f.GetSheetList(); len(got) != 2 || got[0] != "Sample_1" {
		t.Fatalf("unexpected sheets: %v", got)
	}
	rows, err := f.GetRows("Sample_2")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 51 {
		t.Fatalf("expected header plus 50 rows, got %d", len(rows))
	}
}

func TestCLI_ConfigSet(t *testing.T) {
	home := tempHome(t)
	runCmd(t, "config", "set", "tolerance_percent", "10")
	runCmd(t, "config", "set", "log_format", "json")
	if err := execCmd("config", "set", "alpha", "2"); err == nil {
		t.Fatalf("expected error for alpha out of range")
	}
	for _, kv := range [][2]string{
		{"tolerance_percent", "NaN"},
		{"tolerance_percent", "+Inf"},
		{"group_epsilon", "NaN"},
		{"alpha", "NaN"},
	} {
		if err := execCmd("config", "set", kv[0], kv[1]); err == nil {
			t.Fatalf("expected error for %s=%s", kv[0], kv[1])
		}
	}
	if err := execCmd("config", "set", "nope", "1"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	b, err := os.ReadFile(filepath.Join(home, ".twincheck", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(b), "tolerance_percent: 10") || !strings.Contains(string(b), "log_format: json") {
		t.Fatalf("config not saved:\n%s", b)
	}
}
