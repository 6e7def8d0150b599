package main

import (
	"context"

	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager"
)

// offlineCaller is the caller the one-shot commands act as.
const offlineCaller = "addrspaced"

// withManager opens the state file for the duration of fn. When persist is
// set, changes fn made are written back before the file is closed.
func withManager(ctx context.Context, persist bool, fn func(context.Context, *manager.Manager) error) (err error) {
	ctx = manager.WithCaller(log.WithModule(ctx, "addrspaced"), offlineCaller)

	m, err := manager.New(ctx, managerConfig(v))
	if err != nil {
		return err
	}
	defer func() {
		if serr := m.Stop(); serr != nil && err == nil {
			err = serr
		}
	}()

	if !persist {
		return fn(ctx, m)
	}

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() {
		runErr <- m.Run(runCtx)
	}()

	err = fn(ctx, m)
	cancel()
	if rerr := <-runErr; rerr != nil && err == nil {
		err = rerr
	}
	return err
}
