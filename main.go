package main

import "github.com/nextlevelbuilder/beaconobs/cmd"

func main() {
	cmd.Execute()
}
