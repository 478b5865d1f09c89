package internal

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var indexSyncRef string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the local recipe index",
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync [remote]",
	Short: "Sync the recipe index from a git repository",
	Long: `Sync checks out a git repository of recipes into the local index. The
remote defaults to the one of the configuration file and the ref to the
latest tag of the remote.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndexSync,
}

var indexListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "List the recipes of the local index",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndexList,
}

func init() {
	indexSyncCmd.Flags().StringVar(&indexSyncRef, "ref", "", "Git ref to check out")
	indexCmd.AddCommand(indexSyncCmd, indexListCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexSync(cmd *cobra.Command, args []string) error {
	remote, ref := "", indexSyncRef
	if cfg != nil {
		remote = cfg.Index.Remote
		if ref == "" {
			ref = cfg.Index.Ref
		}
	}
	if len(args) > 0 {
		remote = args[0]
	}
	if remote == "" {
		return errors.New("no index remote given and none configured")
	}
	idx, err := openIndex()
	if err != nil {
		return err
	}
	if err := idx.Sync(cmd.Context(), remote, ref); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), colInfo.Sprintf("Index synced from %s", remote))
	return nil
}

func runIndexList(cmd *cobra.Command, args []string) error {
	idx, err := openIndex()
	if err != nil {
		return err
	}
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	refs, err := idx.List(name)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		fmt.Fprintln(cmd.OutOrStdout(), ref)
	}
	return nil
}
