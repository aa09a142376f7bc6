// Command lifeplan-admin is the operator tool for the auth database.
//
// Usage:
//
//	lifeplan-admin gen-key
//	lifeplan-admin migrate     -config server.yaml
//	lifeplan-admin create-user -config server.yaml -email a@example.com -name "A" -role admin
//	lifeplan-admin disable-user -config server.yaml -email a@example.com
//	lifeplan-admin enable-user  -config server.yaml -email a@example.com
//	lifeplan-admin audit       -config server.yaml [-actor <user id>] [-limit 50]
//
// create-user prompts for the password on the terminal; when stdin is not
// a terminal the first line of stdin is used. disable-user also revokes the
// account's sessions when redis.url is configured.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
)

const usage = `usage: lifeplan-admin <command> [flags]

commands:
  gen-key       print a new base64 field encryption key
  migrate       apply database migrations
  create-user   provision an account
  disable-user  block logins and revoke sessions
  enable-user   allow a disabled account to log in
  audit         print recent audit events
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "lifeplan-admin:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "gen-key":
		return genKey(stdout)
	case "migrate":
		return migrate(ctx, rest, stdout, stderr)
	case "create-user":
		return createUser(ctx, rest, stdin, stdout, stderr)
	case "disable-user":
		return setAccountStatus(ctx, "disable-user", true, rest, stdout, stderr)
	case "enable-user":
		return setAccountStatus(ctx, "enable-user", false, rest, stdout, stderr)
	case "audit":
		return recentAudit(ctx, rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}
