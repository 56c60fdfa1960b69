package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/company-agent/internal/chat"
)

func newAskCmd(configPath *string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask the agent one question",
		Long:  `Route one message through the agent, record the exchange and print the answer.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.chat.Chat(cmd.Context(), strings.Join(args, " "), sessionID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Answer)
			fmt.Fprintf(out, "\nsession: %s (route: %s)\n", result.SessionID, result.Route)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue (a new one is generated when empty)")
	return cmd
}

func newHistoryCmd(configPath *string) *cobra.Command {
	var (
		sessionID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent chat exchanges, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			exchanges, err := a.chat.History(cmd.Context(), sessionID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range exchanges {
				session := "-"
				if e.SessionID != nil {
					session = *e.SessionID
				}
				fmt.Fprintf(out, "[%s] %s\n  user: %s\n  bot:  %s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), session, e.UserMessage, e.BotResponse)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Only show this session")
	cmd.Flags().IntVar(&limit, "limit", chat.MaxHistory, "Number of exchanges to show (at most 20)")
	return cmd
}
