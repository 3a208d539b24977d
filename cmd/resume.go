package cmd

import (
	"github.com/spf13/cobra"
)

var resumeRunID string

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a run that was interrupted",
	Long: `resume reloads the persisted state for --resume-run-id and continues
it from wherever Resume Logic classifies it as having stopped: mid-planning,
mid-execution, awaiting consensus, or mid-disposition (spec.md section 4.8).`,
	Args: cobra.NoArgs,
	RunE: func(command *cobra.Command, args []string) error {
		return executeRun("", resumeRunID)
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeRunID, "resume-run-id", "",
		"ID of the run to resume (required)")
	_ = resumeCmd.MarkFlagRequired("resume-run-id")
	rootCmd.AddCommand(resumeCmd)
}
