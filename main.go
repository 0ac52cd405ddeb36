// ./main.go
package main

import (
	"github.com/xkilldash9x/scalpel-ui/cmd"
)

// main is the entry point for the scalpel-ui CLI.
func main() {
	cmd.Execute()
}
