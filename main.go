package main

import (
	"fmt"
	"os"

	"github.com/tphakala/toastd/cmd"
	"github.com/tphakala/toastd/internal/conf"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	settings := conf.Default()
	settings.Version = version

	rootCmd, logs := cmd.RootCommand(settings)
	err := rootCmd.Execute()
	if closeErr := logs.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
