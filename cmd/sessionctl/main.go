package main

import "go.pilab.hu/recovery/cmd/sessionctl/cmd"

func main() {
	cmd.Execute()
}
