package main

import "github.com/oshokin/release-updater/cmd/release-updater/cmd"

func main() {
	cmd.Execute()
}
