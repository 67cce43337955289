// The main package for the opencrawl executable.
package main

import (
	"github.com/opencrawl/opencrawl/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
