package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/haivivi/ishe/cmd/ishe/internal/build"
)

type versionView struct {
	build.Info `yaml:",inline"`
}

func (v versionView) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, v.Info.String()); err != nil {
		return err
	}
	if verbose {
		_, err := fmt.Fprintf(w, "  go:     %s\n  config: %s\n", v.Go, getConfig().Path())
		return err
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return outputResult(versionView{build.Get()})
	},
}
