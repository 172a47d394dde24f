package main

import "github.com/jake-scott/sdm-thermostat/cmd"

func main() {
	cmd.Execute()
}
