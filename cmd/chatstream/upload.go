package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents to the backend",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		client := newClient(func(notice string) {
			fmt.Fprintln(out, notice)
		})

		var failed int
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			resp, err := client.Upload(cmd.Context(), filepath.Base(path), f)
			f.Close()
			if err != nil {
				failed++
				continue
			}
			if dump {
				dumpValue(cmd, resp)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(args))
		}
		return nil
	},
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List uploaded documents and backend features",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		client := newClient(nil)
		backend, documents, err := client.Bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		if dump {
			dumpValue(cmd, backend.Raw)
			dumpValue(cmd, documents)
			return nil
		}
		fmt.Fprintf(out, "streaming: %t\n", backend.StreamingEnabled)
		if len(documents) == 0 {
			fmt.Fprintln(out, "No documents uploaded.")
			return nil
		}
		for _, doc := range documents {
			fmt.Fprintf(out, "%s\t%s\t%d chunks\t%s\n", doc.DocID, doc.Filename, doc.NumChunks, doc.UploadedAt)
		}
		return nil
	},
}
