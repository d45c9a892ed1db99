package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/ishe/pkg/cli"
	"github.com/haivivi/ishe/pkg/sink"
)

var conversationsLimit int

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Query stored conversation history",
}

// historyView prints exchanges as a transcript.
type historyView []sink.Exchange

func (h historyView) RenderText(w io.Writer) error {
	styles := cli.NewStyles(cli.DefaultTheme)
	if len(h) == 0 {
		_, err := fmt.Fprintln(w, "No conversations yet")
		return err
	}
	for _, e := range h {
		if e.UserInput != "" {
			fmt.Fprintln(w, styles.MessageLine(true, e.Timestamp.Local(), e.UserInput))
		}
		if _, err := fmt.Fprintln(w, styles.MessageLine(false, e.Timestamp.Local(), e.AssistantResponse)); err != nil {
			return err
		}
	}
	return nil
}

// matchesView prints search hits with their similarity.
type matchesView []sink.Match

func (m matchesView) RenderText(w io.Writer) error {
	if len(m) == 0 {
		_, err := fmt.Fprintln(w, "No matches")
		return err
	}
	for _, hit := range m {
		kind := hit.Metadata["type"]
		if _, err := fmt.Fprintf(w, "%.3f  %-18s  %s  %s\n", hit.Similarity, kind,
			hit.Timestamp.Local().Format(time.DateTime), hit.Text); err != nil {
			return err
		}
	}
	return nil
}

var conversationsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent exchanges, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newReadSink()
		if err != nil {
			return err
		}
		defer s.Close(context.Background())
		h, err := s.History(cmd.Context(), conversationsLimit)
		if err != nil {
			return err
		}
		return outputResult(historyView(h))
	},
}

var conversationsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find records similar to query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newReadSink()
		if err != nil {
			return err
		}
		defer s.Close(context.Background())
		hits, err := s.Search(cmd.Context(), args[0], conversationsLimit)
		if err != nil {
			return err
		}
		return outputResult(matchesView(hits))
	},
}

func newReadSink() (*sink.HTTPSink, error) {
	ctx, err := getContext()
	if err != nil {
		return nil, err
	}
	opts := []sink.Option{sink.WithToken(ctx.Token), sink.WithLogger(clientLogger())}
	if ctx.Timeout > 0 {
		opts = append(opts, sink.WithHTTPClient(&http.Client{Timeout: time.Duration(ctx.Timeout) * time.Second}))
	}
	return sink.NewHTTPSink(ctx.Server, opts...), nil
}

func init() {
	conversationsCmd.PersistentFlags().IntVarP(&conversationsLimit, "limit", "n", 10, "maximum number of results")
	conversationsCmd.AddCommand(conversationsHistoryCmd)
	conversationsCmd.AddCommand(conversationsSearchCmd)
}
