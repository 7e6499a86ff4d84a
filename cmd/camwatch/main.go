// Command camwatch monitors camera liveness and notifies subscribers on status changes.
package main

import "github.com/oshokin/camwatch/cmd/camwatch/cmd"

func main() {
	cmd.Execute()
}
