package cmd

import (
	"fmt"

	"github.com/KaramelBytes/twincheck-cli/internal/study"
	"github.com/spf13/cobra"
)

var (
	listStudies   bool
	listRuns      bool
	listStudyName string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List studies or the runs of a study",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listStudies == listRuns { // either both true or both false
			return fmt.Errorf("specify exactly one of --studies or --runs")
		}
		if listStudies {
			return listAllStudies()
		}
		if listStudyName == "" {
			return fmt.Errorf("--study is required when using --runs")
		}
		dir, err := resolveStudyDirByName(listStudyName)
		if err != nil {
			return err
		}
		s, err := study.Load(dir)
		if err != nil {
			return err
		}
		if len(s.Runs) == 0 {
			fmt.Println("(no runs)")
			return nil
		}
		for _, r := range s.Runs {
			mode := "shared"
			if r.PairOnly {
				mode = "pair-only"
			}
			fmt.Printf("- %s  %s  tol %.4g%% %s  matched %d/%d  (%s)\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Tolerance, mode, r.Matched, r.TotalVirtual, r.Report)
		}
		return nil
	},
}

func listAllStudies() error {
	root, err := defaultStudiesDir()
	if err != nil {
		return err
	}
	names, err := study.List(root)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("(no studies)")
		return nil
	}
	for _, n := range names {
		fmt.Printf("- %s\n", n)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listStudies, "studies", false, "list studies")
	listCmd.Flags().BoolVar(&listRuns, "runs", false, "list runs recorded in a study")
	listCmd.Flags().StringVarP(&listStudyName, "study", "s", "", "study name for --runs")
}
