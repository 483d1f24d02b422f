// Package main is the entrypoint for the registration gateway: phone-number
// verification sessions for directory-authenticated callers, served over the
// framed binary RPC protocol.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aelexs/registration-gateway/internal/server"
)

func main() {
	ctx := context.Background()
	err := server.Run(ctx, server.Params{
		Name:  "regsvc",
		Setup: setup,
	}, server.Listeners{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	}
	os.Exit(server.ExitCode(err))
}
