package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print version, commit, and build information for the dropzone CLI.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(w, version)
				return
			}

			rows := [][2]string{
				{"Version", version},
				{"Commit", commit},
				{"Built", date},
				{"Go", runtime.Version()},
				{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
			}
			fmt.Fprintln(w, "dropzone")
			for _, r := range rows {
				fmt.Fprintf(w, "  %-9s %s\n", r[0]+":", r[1])
			}
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
