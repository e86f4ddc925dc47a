package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	chatstream "github.com/mayurmacwan/chatstream-go"
	"github.com/mayurmacwan/chatstream-go/chatapi"
	"github.com/mayurmacwan/chatstream-go/utils/ptr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askStream         bool
	askTemperature    float64
	askSeed           int64
	askPromptTemplate string
	askFollowups      bool
	showThinking      bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(nil)
		conv := client.NewConversation()
		if showThinking {
			if _, err := client.ListDocuments(cmd.Context()); err != nil {
				logger.Warn("failed to list documents", zap.Error(err))
			}
		}
		return runQuestion(cmd, client, conv, strings.Join(args, " "))
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold a conversation, one question per line",
	Long: `Reads questions from standard input, one per line, and answers each with the
whole conversation as context.

  /clear     start a new conversation
  /thinking  show the thinking steps and citations so far`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(nil)
		backend, _, err := client.Bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("stream") {
			askStream = cfg.Stream && backend.StreamingEnabled
		}

		conv := client.NewConversation()
		out := cmd.OutOrStdout()
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "/clear":
				conv.Clear()
				fmt.Fprintln(out, "Conversation cleared.")
				continue
			case "/thinking":
				printThinking(out, conv)
				continue
			}
			if err := runQuestion(cmd, client, conv, line); err != nil {
				fmt.Fprintln(out, "Error:", err)
			}
		}
		return scanner.Err()
	},
}

func init() {
	for _, cmd := range []*cobra.Command{askCmd, chatCmd} {
		cmd.Flags().BoolVar(&askStream, "stream", true, "Stream the answer as it is generated")
		cmd.Flags().Float64Var(&askTemperature, "temperature", 0, "Sampling temperature override")
		cmd.Flags().Int64Var(&askSeed, "seed", 0, "Sampling seed override")
		cmd.Flags().StringVar(&askPromptTemplate, "prompt-template", "", "Prompt template override")
		cmd.Flags().BoolVar(&askFollowups, "followups", false, "Ask for follow-up question suggestions")
	}
	askCmd.Flags().BoolVar(&showThinking, "thinking", false, "Show thinking steps and citations after the answer")
}

func overridesFromFlags(cmd *cobra.Command) chatstream.Overrides {
	overrides := chatstream.Overrides{SuggestFollowupQuestions: askFollowups}
	if cmd.Flags().Changed("temperature") {
		overrides.Temperature = ptr.To(askTemperature)
	}
	if cmd.Flags().Changed("seed") {
		overrides.Seed = ptr.To(askSeed)
	}
	if askPromptTemplate != "" {
		overrides.PromptTemplate = ptr.To(askPromptTemplate)
	}
	return overrides
}

func runQuestion(cmd *cobra.Command, client *chatapi.Client, conv *chatstream.Conversation, question string) error {
	out := cmd.OutOrStdout()
	stream := askStream
	if cmd.Name() == "ask" && !cmd.Flags().Changed("stream") {
		stream = cfg.Stream
	}

	printer := &snapshotPrinter{w: out}
	answer, err := client.Ask(cmd.Context(), conv, question, chatapi.AskOptions{
		Overrides:  overridesFromFlags(cmd),
		Stream:     stream,
		OnSnapshot: printer.print,
	})
	if err != nil {
		return err
	}
	printer.finish(*answer)

	if dump {
		dumpValue(cmd, answer)
	}
	for _, q := range answer.FollowupQuestions() {
		fmt.Fprintln(out, "  >", q)
	}
	if showThinking {
		printThinking(out, conv)
	}
	return nil
}

// snapshotPrinter writes the part of each snapshot not yet printed. Answer
// content only grows during a turn.
type snapshotPrinter struct {
	w       io.Writer
	printed int
}

func (p *snapshotPrinter) print(answer chatstream.Answer) {
	content := answer.Message.Content
	if len(content) <= p.printed {
		return
	}
	fmt.Fprint(p.w, content[p.printed:])
	p.printed = len(content)
}

func (p *snapshotPrinter) finish(answer chatstream.Answer) {
	p.print(answer)
	fmt.Fprintln(p.w)
}

func printThinking(w io.Writer, conv *chatstream.Conversation) {
	classifier := conv.Classifier()
	for _, card := range classifier.Cards() {
		fmt.Fprintf(w, "[%s] %s\n%s\n\n", card.Kind, card.Title, card.Content)
	}
	for _, citation := range classifier.Citations() {
		if citation.URL != "" {
			fmt.Fprintf(w, "source (%s): %s %s\n", citation.Kind, citation.Title, citation.URL)
		} else {
			fmt.Fprintf(w, "source (%s): %s\n", citation.Kind, citation.Title)
		}
	}
}
