package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// writeResult prints v as indented JSON or text as a plain line.
func writeResult(cmd *cobra.Command, opts *RootOptions, text string, v interface{}) error {
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(out, text)
	return err
}
