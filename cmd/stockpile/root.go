package main

import (
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lgulliver/stockpile/pkg/client"
)

// cliEnv supplies flag defaults from STOCKPILE_* variables
type cliEnv struct {
	Server  string        `envconfig:"SERVER" default:"http://localhost:8080"`
	APIKey  string        `envconfig:"API_KEY"`
	Token   string        `envconfig:"TOKEN"`
	Retries int           `envconfig:"RETRIES" default:"3"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"1h"`
}

type globalOptions struct {
	server  string
	apiKey  string
	token   string
	retries int
	timeout time.Duration
	verbose bool
}

func (o *globalOptions) client() *client.Client {
	return client.New(o.server,
		client.WithAPIKey(o.apiKey),
		client.WithToken(o.token),
		client.WithRetries(o.retries),
	)
}

func newRootCmd() *cobra.Command {
	var env cliEnv
	if err := envconfig.Process("stockpile", &env); err != nil {
		log.Warn().Err(err).Msg("ignoring invalid STOCKPILE_* environment")
		env = cliEnv{Server: "http://localhost:8080", Retries: 3, Timeout: time.Hour}
	}

	opts := &globalOptions{}

	root := &cobra.Command{
		Use:          "stockpile",
		Short:        "Client for the stockpile chunked upload service",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if opts.verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", env.Server, "server base URL (STOCKPILE_SERVER)")
	flags.StringVar(&opts.apiKey, "api-key", env.APIKey, "API key (STOCKPILE_API_KEY)")
	flags.StringVar(&opts.token, "token", env.Token, "bearer token (STOCKPILE_TOKEN)")
	flags.IntVar(&opts.retries, "retries", env.Retries, "retries per request on server errors")
	flags.DurationVar(&opts.timeout, "timeout", env.Timeout, "overall deadline for a command")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newPushCmd(opts),
		newStatusCmd(opts),
		newAbortCmd(opts),
		newKeygenCmd(),
	)
	return root
}
