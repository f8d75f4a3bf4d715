package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nftsnap/nftsnap/app/nftsnap"
	"github.com/nftsnap/nftsnap/pkg/config"
)

type runFunc func(ctx context.Context, cfg *config.Config, opts nftsnap.Options) error

func runApp(ctx context.Context, cfg *config.Config, opts nftsnap.Options) error {
	app, err := nftsnap.Initialize(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Run(ctx, opts)
}

func newRootCommand(run runFunc) *cobra.Command {
	var (
		opts       nftsnap.Options
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "nftsnap [flags] <token-list-file>",
		Short: "Snapshot holders, metadata and rarity of an NFT collection",
		Long: `nftsnap enriches every token in a token-list file with its holder, on-chain
metadata and off-chain traits, caching progress between runs, then prints
holder and trait reports, writes a CSV snapshot and ranks tokens by rarity.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.TokenFile = args[0]
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return run(cmd.Context(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.GetTokenList, "get-token-list", false, "Fetch the token list from the candy machine and write it to the token-list file")
	flags.StringVar(&opts.CandyMachineID, "cmid", "", "Candy machine id used to fetch the token list")
	flags.BoolVar(&opts.CandyMachineV2, "cmv2", false, "Treat --cmid as a candy machine v2")
	flags.BoolVar(&opts.Holders, "holders", false, "Print the holder distribution")
	flags.BoolVar(&opts.Attributes, "attributes", false, "Print the trait frequency report")
	flags.BoolVar(&opts.Snapshot, "snapshot", false, "Write the CSV snapshot with rarity ranks")
	flags.StringVarP(&opts.CSVFile, "file", "f", "", "CSV snapshot path (default from config, snapshot.csv)")
	flags.BoolVar(&opts.BustCache, "bust-cache", false, "Discard cached token data before fetching")
	flags.StringVar(&opts.Token, "token", "", "Print the rarity detail of one token")
	flags.StringVarP(&configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	return cmd
}
