package main

import (
	"os"

	"conversation-insights-go/cmd/insights/commands"
)

func main() {
	os.Exit(commands.Execute())
}
