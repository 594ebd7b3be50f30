// DMS console CLI - command line client for the DMS channel console
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/frankmark94/channel-play-pen/clients/go/dms"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type cliState struct {
	baseURL string
	output  string
	client  *dms.Client
}

func newRootCmd() *cobra.Command {
	st := &cliState{}

	root := &cobra.Command{
		Use:           "dms",
		Short:         "Command line client for the DMS channel console",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if st.output != "json" && st.output != "yaml" {
				return errors.Errorf("unknown output format %q", st.output)
			}
			st.client = dms.NewClient(st.baseURL)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&st.baseURL, "url", "", "Console API URL (default $DMS_API_URL or "+dms.DefaultBaseURL+")")
	root.PersistentFlags().StringVarP(&st.output, "output", "o", "json", "Output format: json or yaml")

	root.AddCommand(
		newConnectCmd(st),
		newDisconnectCmd(st),
		newSendCmd(st),
		newTypingCmd(st),
		newWaitTimeCmd(st),
		newEndSessionCmd(st),
		newStatusCmd(st),
		newActivityCmd(st),
		newSessionsCmd(st),
	)
	return root
}

func newConnectCmd(st *cliState) *cobra.Command {
	var req dms.ConnectRequest
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect the console to a DMS channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.JWTSecret == "" {
				req.JWTSecret = os.Getenv("DMS_JWT_SECRET")
			}
			resp, err := st.client.Connect(req)
			if err != nil {
				return errors.Wrap(err, "connect")
			}
			return st.print(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&req.CustomerID, "customer", "", "Customer ID")
	cmd.Flags().StringVar(&req.JWTSecret, "secret", "", "Signing secret (default $DMS_JWT_SECRET)")
	cmd.Flags().StringVar(&req.ChannelID, "channel", "", "Channel ID")
	cmd.Flags().StringVar(&req.APIURL, "api-url", "", "DMS API URL")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("api-url")
	return cmd
}

func newDisconnectCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Drop the DMS connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.client.Disconnect(); err != nil {
				return errors.Wrap(err, "disconnect")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected")
			return nil
		},
	}
}

func newSendCmd(st *cliState) *cobra.Command {
	var (
		name string
		rich bool
	)
	cmd := &cobra.Command{
		Use:   "send-message <customer_id> <message>",
		Short: "Send a message to a customer",
		Long:  "Send a text message, or with --rich a JSON rich content message, to a customer.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dms.SendMessageRequest{
				CustomerID:   args[0],
				Message:      args[1],
				MessageType:  "text",
				CustomerName: name,
			}
			if rich {
				var content any
				if err := json.Unmarshal([]byte(args[1]), &content); err != nil {
					return errors.Wrap(err, "rich content must be JSON")
				}
				req.Message = content
				req.MessageType = "rich_content"
			}
			resp, err := st.client.SendMessage(req)
			if err != nil {
				return errors.Wrap(err, "send message")
			}
			return st.print(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Customer display name")
	cmd.Flags().BoolVar(&rich, "rich", false, "Treat the message as JSON rich content")
	return cmd
}

func newTypingCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "typing <customer_id>",
		Short: "Send a typing indicator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.Wrap(st.client.Typing(args[0]), "typing")
		},
	}
}

func newWaitTimeCmd(st *cliState) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "wait-time <customer_id>",
		Short: "Send a wait time update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.Wrap(st.client.WaitTime(args[0], int64(wait.Seconds())), "wait time")
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "Expected wait")
	return cmd
}

func newEndSessionCmd(st *cliState) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "end-session <customer_id>",
		Short: "End a customer conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := st.client.EndSession(args[0], reason)
			if err != nil {
				return errors.Wrap(err, "end session")
			}
			return st.print(cmd.OutOrStdout(), session)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the activity log")
	return cmd
}

func newStatusCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := st.client.Status()
			if err != nil {
				return errors.Wrap(err, "status")
			}
			return st.print(cmd.OutOrStdout(), status)
		},
	}
}

func newActivityCmd(st *cliState) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent activity, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := st.client.Activity(limit)
			if err != nil {
				return errors.Wrap(err, "activity")
			}
			return st.print(cmd.OutOrStdout(), logs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records")
	return cmd
}

func newSessionsCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List customer sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := st.client.Sessions()
			if err != nil {
				return errors.Wrap(err, "sessions")
			}
			return st.print(cmd.OutOrStdout(), sessions)
		},
	}
}

// print writes v in the selected format. YAML output goes through JSON so
// field names match the API.
func (st *cliState) print(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if st.output != "yaml" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}
