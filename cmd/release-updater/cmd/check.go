package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/release-updater/internal/service/updater"
)

// checkCmd reports whether a newer release exists without changing anything.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether a newer release is published",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := updater.Check(cmd.Context(), options())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "installed: %s\nlatest:    %s\n", res.Current, res.Latest)

		if res.Newer {
			_, _ = fmt.Fprintf(out, "update available: %s\n", res.ArtifactURL)
		} else {
			_, _ = fmt.Fprintln(out, "up to date")
		}

		return nil
	},
}
