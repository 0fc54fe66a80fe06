package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var artifactsConversation string

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List artifacts produced by tool calls",
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := newRuntime(false)
		if err != nil {
			exitErr("startup", err)
		}
		defer rt.Close()

		arts, err := rt.router.ListArtifacts(cmd.Context(), artifactsConversation)
		if err != nil {
			exitErr("list artifacts", err)
		}
		if len(arts) == 0 {
			fmt.Println("no artifacts")
			return
		}
		for _, a := range arts {
			fmt.Printf("%-10s %-16s %s  %s\n", a.Kind, a.Tool, a.CreatedAt.Format("2006-01-02 15:04"), a.Path)
		}
	},
}

func init() {
	artifactsCmd.Flags().StringVarP(&artifactsConversation, "conversation", "C", "", "Conversation ID (defaults to the shared space)")
	RootCmd.AddCommand(artifactsCmd)
}
