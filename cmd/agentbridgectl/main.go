// Command agentbridgectl is the single example CLI test harness spec.md
// §6 calls for: it drives one backend end-to-end from flags and prints
// normalized events as JSON lines on stdout. It is representative only,
// not part of the library's contract — a consumer embeds the library
// directly rather than shelling out to this binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentbridgectl",
		Short: "Drive a single agentbridge backend session from the command line",
		Long: "agentbridgectl starts one session against a chosen backend, sends a single\n" +
			"prompt, streams the normalized event log as JSON lines to stdout, and\n" +
			"exits once the turn completes — a representative example harness, not a\n" +
			"supported client library.",
	}
	root.AddCommand(newRunCmd())
	return root
}
