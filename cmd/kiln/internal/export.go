package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	exportUser    string
	exportChannel string
)

var exportCmd = &cobra.Command{
	Use:   "export <recipe>",
	Short: "Copy a recipe into the local index",
	Long: `Export copies a recipe file, or the recipe of a directory, together with
its sibling files into the persistent local index. Later resolutions find it
there when no local export provides the same reference.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "User of the exported reference")
	exportCmd.Flags().StringVar(&exportChannel, "channel", "", "Channel of the exported reference")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	ref, err := idx.Export(cmd.Context(), args[0], exportUser, exportChannel)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), colArrow.Sprint("-> "))
	fmt.Fprintln(cmd.OutOrStdout(), colSuccess.Sprintf("Exported %s", ref))
	return nil
}
