// nagochat is a chat widget that forwards user messages to an LLM completion endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/linanwx/nagochat/cmd"
)

func main() {
	if err := cmd.InitLogging(); err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
	}
	cmd.Execute()
}
