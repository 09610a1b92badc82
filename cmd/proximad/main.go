// Command proximad runs the proxima daemon in the foreground. It is the
// entry point for service managers; `proxima start` launches the same daemon
// detached through the CLI binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
