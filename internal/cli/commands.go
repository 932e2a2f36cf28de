package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"FinCast/internal/di"
	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/forecast"
	"FinCast/internal/usecase"
	"FinCast/pkg/config"
	"FinCast/pkg/server"
	xutil "FinCast/pkg/util"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var configPath string
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "fincast",
		Short: "FinCast - crypto candle forecasting engine",
		Long: `FinCast builds technical features from closed candles, trains regression models
per timeframe and serves multi-step OHLC forecasts with confidence scores.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			_ = godotenv.Load()
			c, err := config.LoadWithEnv(configPath)
			if err != nil {
				return err
			}
			cfg = c
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (defaults only when empty)")

	cfgFn := func() *config.Config { return cfg }
	rootCmd.AddCommand(newServeCmd(cfgFn))
	rootCmd.AddCommand(newTrainCmd(cfgFn))
	rootCmd.AddCommand(newForecastCmd(cfgFn))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket stream and candle consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := di.InitializeApp(cfg())
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			return app.Run()
		},
	}
}

func newTrainCmd(cfg func() *config.Config) *cobra.Command {
	var (
		timeframes []string
		symbols    string
		families   []string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train models for one or more timeframes",
		Example: `  fincast train --tf 1h --tf 4h --symbols BTCUSDT,ETHUSDT
  fincast train --family linear --family forest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if len(timeframes) == 0 {
				timeframes = c.Training.Timeframes
			}
			fams := make([]models.ModelFamily, len(families))
			for i, f := range families {
				fams[i] = models.ModelFamily(f)
			}
			return withApp(c, func(ctx context.Context, app *server.App) error {
				for _, tf := range timeframes {
					fmt.Println(titleStyle.Render("training " + tf))
					rep, err := app.Trainer().Run(ctx, usecase.TrainParams{
						Timeframe: domrepo.Timeframe(tf),
						Symbols:   xutil.SplitSymbols(symbols),
						Families:  fams,
					})
					if err != nil {
						fmt.Println(errorStyle.Render("failed: " + err.Error()))
						return err
					}
					fmt.Println(renderTrainReport(rep))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&timeframes, "tf", nil, "timeframes to train (default from config)")
	cmd.Flags().StringVar(&symbols, "symbols", "", "comma separated symbols (default from config)")
	cmd.Flags().StringSliceVar(&families, "family", nil, "model families to train (default from config)")
	return cmd
}

func newForecastCmd(cfg func() *config.Config) *cobra.Command {
	var (
		tf    string
		steps int
		mode  string
	)
	cmd := &cobra.Command{
		Use:   "forecast [SYMBOL]",
		Short: "Generate a fresh forecast for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := strings.ToUpper(strings.TrimSpace(args[0]))
			return withApp(cfg(), func(ctx context.Context, app *server.App) error {
				p, err := app.Forecasts().Forecast(ctx, usecase.ForecastParams{
					Symbol:    symbol,
					Timeframe: domrepo.Timeframe(tf),
					Steps:     steps,
					Mode:      forecast.Mode(mode),
					Fresh:     true,
				})
				if err != nil {
					fmt.Println(errorStyle.Render("forecast failed: " + err.Error()))
					return err
				}
				fmt.Println(renderForecast(p))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tf, "tf", "1h", "timeframe")
	cmd.Flags().IntVar(&steps, "steps", 5, "number of future candles")
	cmd.Flags().StringVar(&mode, "mode", "iterative", "iterative or direct")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("FinCast " + Version)
		},
	}
}

// withApp builds the application, runs fn until it returns or the process is interrupted, then shuts down.
func withApp(cfg *config.Config, fn func(ctx context.Context, app *server.App) error) error {
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := fn(ctx, app)
	if err := app.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
