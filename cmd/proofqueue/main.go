package main

import "github.com/moven0831/proofqueue/services/proofqueue/cli"

func main() {
	cli.Execute()
}
