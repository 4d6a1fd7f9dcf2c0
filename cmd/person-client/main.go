// Command person-client talks to the person API from the command line.
package main

import (
	"os"
)

func main() {
	if err := newApp().Execute(); err != nil {
		os.Exit(1)
	}
}
