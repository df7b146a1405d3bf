package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join <invite_code>",
	Short: "Join a darknet with an invite code",
	Long: `Join a darknet using an invite code of the form host:port:code.

A fresh keypair is generated, the invite is redeemed with the coordination
server and the interface is brought up with the server as its first peer.
wg-dark then keeps the peer list in sync until interrupted, and removes the
interface on exit.

Examples:
  # Join using the default interface name
  wg-dark join 203.0.113.7:443:s3cr3t

  # Join on a custom interface without touching the system
  wg-dark join 203.0.113.7:443:s3cr3t --interface office --dry-run`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log, err := loadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		rt, err := newRuntime(cfg, log, dryRun)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		fmt.Printf("Joining darknet...\n")
		session, err := rt.connector.Join(ctx, args[0])
		if err != nil {
			log.ErrorCtx(ctx, "join failed", err)
			os.Exit(1)
		}

		fmt.Printf("Joined darknet!\n")
		printSession(session, cfg)
		rt.supervise(ctx, session)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().Bool("dry-run", false, "use an in-memory interface instead of ip/wg and persist nothing")
}
