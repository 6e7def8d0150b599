package main

import (
	"context"
	"encoding/json"

	"github.com/contractor/addrspace/ioutils"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <output.json>",
	Short: "Write a JSON snapshot of the state file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("export command takes exactly one output file")
		}

		return withManager(context.Background(), false, func(ctx context.Context, m *manager.Manager) error {
			return exportSnapshot(ctx, m, args[0])
		})
	},
}

// exportSnapshot writes the content of the store to path, replacing it
// atomically.
func exportSnapshot(ctx context.Context, m *manager.Manager, path string) error {
	snapshot, err := m.Store().Save()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}
	if err := ioutils.AtomicWriteFile(path, append(data, '\n'), 0o600); err != nil {
		return err
	}
	log.G(ctx).WithField("version", snapshot.Version).Infof("exported snapshot to %s", path)
	return nil
}
