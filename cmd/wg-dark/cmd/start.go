package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Bring a previously joined darknet back up",
	Long: `Bring a previously joined darknet back up from the files saved in the
state directory: <name>.conf holds the WireGuard configuration and <name>.yaml
the session record. The saved key and address are reused and every saved peer
is merged again; no invite is needed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log, err := loadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		rt, err := newRuntime(cfg, log, false)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		session, err := rt.connector.Start(ctx, args[0])
		if err != nil {
			log.ErrorCtx(ctx, "start failed", err)
			os.Exit(1)
		}

		fmt.Printf("Darknet started!\n")
		printSession(session, cfg)
		rt.supervise(ctx, session)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
