package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"github.com/tyemirov/formrelay/clients/cli/internal/command"
	cliConfig "github.com/tyemirov/formrelay/clients/cli/internal/config"
	"github.com/tyemirov/formrelay/pkg/client"
	"github.com/tyemirov/formrelay/pkg/logging"
)

func main() {
	v := viper.New()
	cfg, err := cliConfig.Load(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	settings, err := client.NewSettings(cfg.ServerURL(), cfg.TimeoutSeconds())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithWriter(os.Stderr, cfg.LogLevel(), cfg.LogFormat())

	relayClient, err := client.NewRelayClient(logger, settings)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := command.NewRootCommand(command.Dependencies{
		Sender:           relayClient,
		HealthChecker:    relayClient,
		OperationTimeout: cfg.OperationTimeout(),
		Output:           os.Stdout,
	})
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if execErr := root.Execute(); execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
		os.Exit(1)
	}
}
