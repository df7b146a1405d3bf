package cmd

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/chiquitav2/wg-dark/internal/darknet/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List saved darknets",
	Long: `List every darknet saved in the state directory with its address, server,
number of known peers and whether its interface currently exists.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log, err := loadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		store := state.NewStore(cfg.StateDir, log)
		if err := renderStatus(os.Stdout, store, linkExists); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func linkExists(name string) bool {
	_, err := net.InterfaceByName(name)
	return err == nil
}

// renderStatus writes a table of the saved darknets. isUp reports whether a
// link with the given name exists.
func renderStatus(w io.Writer, store *state.Store, isUp func(string) bool) error {
	records, err := store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(w, "No darknets saved in %s\n", store.Dir())
		return nil
	}

	data := pterm.TableData{{"NAME", "STATE", "ADDRESS", "SERVER", "ENDPOINT", "PEERS", "JOINED"}}
	for _, r := range records {
		peers := "-"
		if saved, err := store.Load(r.Name); err == nil {
			peers = strconv.Itoa(len(saved.Config.PeerList))
		}
		linkState := "down"
		if isUp(r.Name) {
			linkState = "up"
		}
		joined := "-"
		if !r.JoinedAt.IsZero() {
			joined = r.JoinedAt.Local().Format(time.DateTime)
		}
		data = append(data, []string{r.Name, linkState, r.Address, shortKey(r.ServerPublicKey), r.Endpoint, peers, joined})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	fmt.Fprintln(w, table)
	return nil
}

// shortKey abbreviates a base64 key for display.
func shortKey(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:8] + "…"
}
