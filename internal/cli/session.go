package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/harun/smprofiler/pkg/client"
	"github.com/harun/smprofiler/pkg/profiler"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Manage profiler sessions on a running service",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live profiler sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := clientContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		sessions, err := c.ListSessions(ctx)
		if err != nil {
			return err
		}
		return printSessions(cmd, sessions)
	},
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a profiler session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := clientContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		sess, err := c.CreateSession(ctx)
		if err != nil {
			return err
		}
		return printSession(cmd, sess)
	},
}

var sessionDescribeCmd = &cobra.Command{
	Use:   "describe <name>",
	Short: "Show one profiler session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := clientContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		sess, err := c.DescribeSession(ctx, args[0])
		if err != nil {
			return err
		}
		return printSession(cmd, sess)
	},
}

var sessionTerminateCmd = &cobra.Command{
	Use:     "terminate <name>",
	Aliases: []string{"delete", "rm"},
	Short:   "Terminate a profiler session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel, err := clientContext(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		if err := c.TerminateSession(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s terminated\n", args[0])
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd, sessionCreateCmd, sessionDescribeCmd, sessionTerminateCmd)
	rootCmd.AddCommand(sessionCmd)
}

func printSessions(cmd *cobra.Command, sessions []profiler.Session) error {
	return printOutput(cmd.OutOrStdout(), outputFormat, sessions, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "NAME\tLOCATION")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Location)
		}
	})
}

func printSession(cmd *cobra.Command, sess profiler.Session) error {
	return printOutput(cmd.OutOrStdout(), outputFormat, sess, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Name:\t%s\n", sess.ID)
		fmt.Fprintf(tw, "Location:\t%s\n", sess.Location)
	})
}

// clientContext returns a client and a context bounded by --request-timeout.
func clientContext(cmd *cobra.Command) (*client.Client, context.Context, context.CancelFunc, error) {
	c, err := newClient(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	return c, ctx, cancel, nil
}
