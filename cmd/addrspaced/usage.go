package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager"
	"github.com/contractor/addrspace/manager/registry"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage [<block id>...]",
	Short: "Show how much of address blocks is in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := cmd.Flags().GetString("site")
		if err != nil {
			return err
		}
		if len(args) == 0 && site == "" {
			return errors.New("usage command takes block ids or --site")
		}

		return withManager(context.Background(), false, func(ctx context.Context, m *manager.Manager) error {
			var blocks []*api.AddressBlock
			if len(args) == 0 {
				list, err := m.ListAddressBlocks(ctx, site)
				if err != nil {
					return err
				}
				blocks = list
			}
			for _, id := range args {
				b, err := m.GetAddressBlock(ctx, id)
				if err != nil {
					return err
				}
				blocks = append(blocks, b)
			}
			sort.Slice(blocks, func(i, j int) bool { return blocks[i].Name < blocks[j].Name })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer func() {
				// Ignore flushing errors - there's nothing we can do.
				_ = w.Flush()
			}()
			fmt.Fprintln(w, "ID\tName\tNetwork\tSize\tStatic\tReserved\tDynamic")
			for _, b := range blocks {
				u, err := m.Usage(ctx, b.ID)
				if err != nil {
					return err
				}
				printUsage(w, b, u)
			}
			return nil
		})
	},
}

func init() {
	usageCmd.Flags().String("site", "", "Show every block of a site")
}

func printUsage(w *tabwriter.Writer, b *api.AddressBlock, u registry.Usage) {
	fmt.Fprintf(w, "%s\t%s\t%s/%d\t%s\t%d\t%d\t%d\n",
		b.ID,
		b.Name,
		b.Subnet,
		b.Prefix,
		humanize.BigComma(u.Total),
		u.Static,
		u.Reserved,
		u.Dynamic,
	)
}
