// biosecure runs the insect investigation service.
//
// Usage:
//
//	biosecure serve [--port=:8081]
//	biosecure investigate --location=<place> [--image=<uri>] [--json]
//	biosecure classify <species>
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
