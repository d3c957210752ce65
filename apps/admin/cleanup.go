package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) cleanup() error {
	rep, err := cli.cleanupJob.RunOnce(context.Background(), time.Now().UTC())
	fmt.Printf("deleted %d incomplete account(s) and %d stale schedule(s)\n", rep.DeletedAccounts, rep.DeletedSchedules)
	return err
}
