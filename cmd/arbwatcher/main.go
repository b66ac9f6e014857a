package main

import (
	"arb-route-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
