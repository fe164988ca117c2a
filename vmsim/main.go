// Command vmsim runs synthetic processes on the demand-paged virtual memory
// manager and reports how it behaved.
package main

import "github.com/sarchlab/vmkit/vmsim/cmd"

func main() {
	cmd.Execute()
}
