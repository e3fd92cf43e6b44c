package main

import "github.com/canopyops/portal/cmd/portal/cmd"

func main() {
	cmd.Execute()
}
