package main

import (
	"context"
	"fmt"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/manager"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <ip address>",
	Short: "Find the address record holding an IP address",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("lookup command takes exactly one IP address")
		}
		site, err := cmd.Flags().GetString("site")
		if err != nil {
			return err
		}

		return withManager(context.Background(), false, func(ctx context.Context, m *manager.Manager) error {
			var a *api.BaseAddress
			if site != "" {
				a, err = m.LookupAddressInSite(ctx, site, args[0])
			} else {
				a, err = m.LookupAddress(ctx, args[0])
			}
			if err != nil {
				return err
			}
			if a == nil {
				return errors.Errorf("%s is not allocated", args[0])
			}

			eff, err := m.ResolveAddress(ctx, a.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID\t: %s\n", a.ID)
			fmt.Fprintf(out, "Kind\t: %s\n", a.Kind)
			fmt.Fprintf(out, "Block\t: %s\n", eff.BlockID)
			fmt.Fprintf(out, "Offset\t: %s\n", eff.Offset)
			fmt.Fprintf(out, "IP\t: %s/%d\n", eff.IP, eff.Prefix)
			if eff.Gateway != nil {
				fmt.Fprintf(out, "Gateway\t: %s\n", eff.Gateway)
			}
			switch {
			case a.Address != nil:
				fmt.Fprintf(out, "Host\t: %s\n", a.Address.NetworkedID)
				fmt.Fprintf(out, "Interface\t: %s\n", a.Address.InterfaceName)
			case a.Reserved != nil:
				fmt.Fprintf(out, "Reason\t: %s\n", a.Reserved.Reason)
			case a.Dynamic != nil && a.Dynamic.PXE != "":
				fmt.Fprintf(out, "PXE\t: %s\n", a.Dynamic.PXE)
			}
			return nil
		})
	},
}

func init() {
	lookupCmd.Flags().String("site", "", "Only look in this site")
}
