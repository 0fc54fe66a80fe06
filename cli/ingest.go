package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var ingestTitle string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest text documents into the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := newRuntime(false)
		if err != nil {
			exitErr("startup", err)
		}
		defer rt.Close()

		for _, path := range args {
			raw, err := os.ReadFile(path)
			if err != nil {
				exitErr("read "+path, err)
			}
			title := ingestTitle
			if title == "" || len(args) > 1 {
				title = filepath.Base(path)
			}
			docID, err := rt.knowledge.Ingest(cmd.Context(), title, string(raw))
			if err != nil {
				exitErr("ingest "+path, err)
			}
			fmt.Printf("%s -> %s\n", path, docID)
		}
	},
}

var ingestListCmd = &cobra.Command{
	Use:   "docs",
	Short: "List ingested documents",
	Run: func(cmd *cobra.Command, args []string) {
		rt, err := newRuntime(false)
		if err != nil {
			exitErr("startup", err)
		}
		defer rt.Close()

		docs, err := rt.knowledge.ListDocuments(cmd.Context())
		if err != nil {
			exitErr("list documents", err)
		}
		for _, doc := range docs {
			fmt.Printf("%s  %-30s  %d chunks  %s\n",
				doc.ID, doc.Title, len(doc.ChunkIDs), doc.IngestedAt.Format("2006-01-02 15:04"))
		}
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestTitle, "title", "t", "", "Document title (defaults to the file name)")
	RootCmd.AddCommand(ingestCmd)
	RootCmd.AddCommand(ingestListCmd)
}
