package main

import (
	"github.com/plmforge/copilot/internal/server"
	"github.com/plmforge/copilot/internal/util"
	"github.com/plmforge/copilot/pkg/logger"
	"github.com/plmforge/copilot/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
