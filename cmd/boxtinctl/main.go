// Command boxtinctl validates, inspects, and dumps a policy rule file.
package main

import (
	"fmt"
	"os"

	"github.com/cojen/boxtin/cmd/boxtinctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
