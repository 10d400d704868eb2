package main

import (
	"os"

	"github.com/flowlens/flowlens/cmd/importer/cmd"
	"github.com/flowlens/flowlens/internal/common"
	"github.com/flowlens/flowlens/internal/common/logging"
)

func main() {
	logging.ConfigureLogging()
	common.BindCommandlineArguments()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
