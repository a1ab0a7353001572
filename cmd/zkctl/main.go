// Command zkctl is the wallet-side companion of the agegate node: it generates setup
// parameters, proves age statements locally and mints development tokens.
package main

import (
	"fmt"
	"io"
	"os"
)

const usage = `usage: zkctl <command> [flags]

commands:
  params   generate universal setup parameters and print their digest
  vk       derive the verifying key digest from pinned parameters
  prove    prove an age statement and print a registration body
  token    mint a bearer token for an account (development only)
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "zkctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "params":
		return runParams(rest, out)
	case "vk":
		return runVK(rest, out)
	case "prove":
		return runProve(rest, out)
	case "token":
		return runToken(rest, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
