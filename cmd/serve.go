package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mpsync/internal/server"
)

func (r *Runner) serverAddr(cmd *cli.Command) string {
	host := r.config.Server.Host
	if h := cmd.String("host"); h != "" {
		host = h
	}
	port := r.config.Server.Port
	if p := cmd.Int("port"); p > 0 {
		port = p
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Serve runs the task API until interrupted. Accounts named with --restore are restored
// into their partitions first, staging their local storage for one injection read.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	for _, id := range cmd.StringSlice("restore") {
		account, err := r.accounts.Get(id)
		if err != nil {
			return err
		}
		if _, err := r.sessions.RestoreAccount(account); err != nil {
			return fmt.Errorf("failed to restore %s: %w", id, err)
		}
	}

	keepAlive := time.Duration(cmd.Int("keep-alive")) * time.Second
	router := server.NewRouter(r.registry, r.sessions, keepAlive, r.logger)

	addr := r.serverAddr(cmd)
	r.logger.Info("serving task API", "addr", addr)
	return server.Serve(ctx, addr, router, r.logger)
}
