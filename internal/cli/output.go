package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// writeOutput prints v as indented JSON or through text, depending on the
// --format flag.
func writeOutput(cmd *cobra.Command, opts *RootOptions, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
