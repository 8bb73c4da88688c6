package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/peer"
	"github.com/aretw0/portalgate/pkg/portal"
	"github.com/spf13/cobra"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the sibling instances in query order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir, err := peer.NewDirectory(cfg.InstanceID, cfg.Peers)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "self\t%s\n", dir.Self())
		for i, p := range dir.Peers() {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, p.ID, p.Address)
		}
		return w.Flush()
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <token>",
	Short: "Ask every sibling instance whether it holds a token",
	Long: `Queries each configured peer for the token, in order, and prints what each one answered.
Nothing is imported locally. A peer that holds the token treats the query as an
interaction, so its sliding window is refreshed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir, err := peer.NewDirectory(cfg.InstanceID, cfg.Peers)
		if err != nil {
			return err
		}
		client := peer.NewClient(dir.Self(), portal.Codec{}, peer.WithTimeout(cfg.PeerTimeout))

		out := cmd.OutOrStdout()
		for _, p := range dir.Peers() {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.PeerTimeout)
			start := time.Now()
			rec, err := client.Lookup(ctx, p, args[0])
			cancel()

			elapsed := time.Since(start).Round(time.Millisecond)
			switch {
			case err != nil:
				fmt.Fprintf(out, "%s\terror\t%v\n", p, err)
			case rec == nil:
				fmt.Fprintf(out, "%s\t%s\t%s\n", p, domain.NotFound, elapsed)
			default:
				fmt.Fprintf(out, "%s\t%s\t%s\tlast interaction %s\n", p, domain.Found, elapsed,
					rec.LastInteraction.Format(time.RFC3339))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(lookupCmd)
}
