// Command pgrant runs one resource owner password credentials login against
// the token endpoint configured in the environment and prints the outcome.
//
//	PASSWORDGRANT_TOKEN_URL=https://idp/token PASSWORDGRANT_CLIENT_ID=cli \
//	  pgrant login --username alice --password-stdin <<< "$PASSWORD"
//
// Exit status is 0 on success, 1 when the login failed or errored and 2 for
// usage problems.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
