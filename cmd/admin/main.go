// admin is the operator CLI: schema migration, user provisioning and
// evidence counter repair.
//
// Usage:
//
//	admin migrate [--reset]
//	admin create-user --name=<name> --email=<email> --password=<pw> [--role=admin]
//	admin set-role --email=<email> --role=<role>
//	admin recount-evidence
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
