package main

import (
	"github.com/palfrey/tavern/cmd"
	"github.com/palfrey/tavern/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
