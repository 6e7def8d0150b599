package main

import (
	"context"
	"fmt"

	"github.com/contractor/addrspace/manager"
	"github.com/contractor/addrspace/manager/inventory"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <inventory.yaml>",
	Short: "Create the records of an inventory file in the state file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("load command takes exactly one inventory file")
		}

		inv, err := inventory.LoadFile(args[0])
		if err != nil {
			return err
		}

		var sum inventory.Summary
		err = withManager(context.Background(), true, func(ctx context.Context, m *manager.Manager) error {
			var err error
			sum, err = inv.Apply(ctx, m)
			return err
		})

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "blocks: %d\n", sum.Blocks)
		fmt.Fprintf(out, "reservations: %d\n", sum.Reservations)
		fmt.Fprintf(out, "networks: %d\n", sum.Networks)
		fmt.Fprintf(out, "hosts: %d\n", sum.Hosts)
		fmt.Fprintf(out, "interfaces: %d\n", sum.Interfaces)
		fmt.Fprintf(out, "addresses: %d\n", sum.Addresses)
		return err
	},
}
