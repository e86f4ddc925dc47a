package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	chatstream "github.com/mayurmacwan/chatstream-go"
	"github.com/mayurmacwan/chatstream-go/internal/sliceutils"
	"github.com/mayurmacwan/chatstream-go/thinking"
	"github.com/spf13/cobra"
)

var (
	documentsFile string
	decodeJSON    bool
)

var thinkingCmd = &cobra.Command{
	Use:   "thinking <records.json>",
	Short: "Classify recorded trace records into thinking cards",
	Long: `Reads trace records, either a JSON array or a saved /chat response with a
"thinking_logs" field, and prints the thinking cards and citations they
produce. Use "-" to read standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		records, err := parseRecords(data)
		if err != nil {
			return err
		}

		docs := thinking.NewDocumentIndex()
		if documentsFile != "" {
			raw, err := os.ReadFile(documentsFile)
			if err != nil {
				return err
			}
			var list struct {
				Documents []thinking.Document `json:"documents"`
			}
			if err := json.Unmarshal(raw, &list); err != nil {
				return fmt.Errorf("parsing %s: %w", documentsFile, err)
			}
			docs.Replace(list.Documents)
		}

		classifier := thinking.NewClassifier(
			thinking.WithDocuments(docs),
			thinking.WithLogger(logger),
		)
		classifier.Update(records)

		if dump {
			dumpValue(cmd, classifier.Cards())
			dumpValue(cmd, classifier.Citations())
			return nil
		}
		conv := chatstream.NewConversation(chatstream.WithClassifier(classifier))
		printThinking(cmd.OutOrStdout(), conv)
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <body>",
	Short: "Assemble an answer from a recorded response body",
	Long: `Assembles the answer from a recorded /chat/stream body (NDJSON), or from a
/chat body with --json. Use "-" to read standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			body = f
		}

		out := cmd.OutOrStdout()
		var (
			answer *chatstream.Answer
			err    error
		)
		if decodeJSON {
			answer, err = chatstream.ParseAnswer(cmd.Context(), body)
		} else {
			printer := &snapshotPrinter{w: out}
			answer, err = chatstream.RunTurn(cmd.Context(), body, chatstream.TurnOptions{
				SnapshotInterval: cfg.SnapshotInterval,
				OnSnapshot:       printer.print,
				Logger:           logger,
			})
			if err == nil {
				printer.finish(*answer)
			}
		}
		if err != nil {
			return err
		}

		if decodeJSON {
			fmt.Fprintln(out, answer.Message.Content)
		}
		if dump {
			dumpValue(cmd, answer)
		}
		return nil
	},
}

func init() {
	thinkingCmd.Flags().StringVar(&documentsFile, "documents", "", "A saved /list_documents response used to resolve document citations")
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "The body is a single JSON response")
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// parseRecords accepts a JSON array of records or an object carrying them
// under "thinking_logs". Entries that are not objects are dropped.
func parseRecords(data []byte) ([]map[string]any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing trace records: %w", err)
	}
	if obj, ok := raw.(map[string]any); ok {
		raw = obj["thinking_logs"]
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("no trace records found")
	}
	return sliceutils.FilterMap(list, sliceutils.AsObject), nil
}
