// Command fbmon monitors and drives a ForceBalance optimizer server.
package main

import (
	"fmt"
	"os"

	"github.com/tessro/fbmon/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "🧪 Error: %v\n", err)
		os.Exit(1)
	}
}
