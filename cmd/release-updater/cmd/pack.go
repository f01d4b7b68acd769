package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/release-updater/internal/service/packager"
)

var (
	// packName is the top-level folder inside the produced zip.
	packName string
	// packExclude lists paths relative to the packed directory that are left out.
	packExclude []string

	// packCmd builds a release zip that can be published to a mirror.
	packCmd = &cobra.Command{
		Use:   "pack <dir> <output.zip>",
		Short: "Pack a directory into a release zip with a single top-level folder",
		Args:  cobra.ExactArgs(2), //nolint:mnd // Source and destination.
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := packager.Run(cmd.Context(), &packager.Options{
				Dir:     args[0],
				Output:  args[1],
				Name:    packName,
				Exclude: packExclude,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries under %s/\n", res.Output, res.Entries, res.Name)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	packCmd.Flags().StringVar(&packName, "name", "", "top-level folder name, defaults to the directory name")
	packCmd.Flags().StringSliceVar(&packExclude, "exclude", nil, "paths relative to <dir> to leave out")
}
