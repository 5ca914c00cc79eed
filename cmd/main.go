package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"signalengine/cmd/keys"
	"signalengine/cmd/reconcile"
	"signalengine/src/connectors"
	"signalengine/src/database"
	"signalengine/src/sentiment"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Signalengine CMD"
	app.Usage = "The signalengine command line interface"

	app.Commands = []cli.Command{
		collectorCMD,
		reconcileCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	collectorCMD = cli.Command{
		Name:        "collector",
		Usage:       "run the sentiment collector",
		Action:      collectorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Poll the Fear & Greed index and store snapshots`,
	}
	reconcileCMD = cli.Command{
		Name:        "reconcile",
		Usage:       "reconcile stale pending positions",
		Action:      reconcileAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Settle pending positions against exchange state`,
	}
	keysCMD = cli.Command{
		Name:  "keys",
		Usage: "manage exchange API credentials",
		Subcommands: []cli.Command{
			{
				Name:   "set",
				Usage:  "store or rotate a credential",
				Action: keysSetAction,
				Flags: []cli.Flag{
					cli.StringFlag{Name: "user", Usage: "username"},
					cli.StringFlag{Name: "exchange", Usage: "exchange name (bybit|binance)"},
					cli.StringFlag{Name: "key", Usage: "API key"},
					cli.StringFlag{Name: "secret", Usage: "API secret"},
					cli.StringFlag{Name: "env", Usage: "mainnet or testnet", Value: "testnet"},
				},
			},
			{
				Name:   "activate",
				Usage:  "activate a stored credential",
				Action: keysActivateAction,
				Flags:  keyToggleFlags,
			},
			{
				Name:   "deactivate",
				Usage:  "deactivate a stored credential",
				Action: keysDeactivateAction,
				Flags:  keyToggleFlags,
			},
			{
				Name:   "validate",
				Usage:  "run a live credential check",
				Action: keysValidateAction,
				Flags:  keyToggleFlags,
			},
		},
	}

	keyToggleFlags = []cli.Flag{
		cli.StringFlag{Name: "user", Usage: "username"},
		cli.StringFlag{Name: "exchange", Usage: "exchange name (bybit|binance)"},
	}
)

func collectorAction(_ *cli.Context) error {
	logrus.Info("Starting sentiment collector CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := sentiment.NewCollector().Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func reconcileAction(_ *cli.Context) error {
	logrus.Info("Starting reconcile CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	settled, err := reconcile.NewReconciler(defaultFactory()).Run(context.Background())
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	logrus.WithField("settled", settled).Info("Reconcile finished")
	return nil
}

func keysSetAction(c *cli.Context) error {
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	return keys.NewManager(defaultFactory()).Set(
		context.Background(),
		c.String("user"),
		c.String("exchange"),
		c.String("key"),
		c.String("secret"),
		c.String("env"),
	)
}

func keysActivateAction(c *cli.Context) error {
	return toggleCredential(c, true)
}

func keysDeactivateAction(c *cli.Context) error {
	return toggleCredential(c, false)
}

func toggleCredential(c *cli.Context, active bool) error {
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	return keys.NewManager(defaultFactory()).SetActive(
		context.Background(),
		c.String("user"),
		c.String("exchange"),
		active,
	)
}

func keysValidateAction(c *cli.Context) error {
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	return keys.NewManager(defaultFactory()).Validate(
		context.Background(),
		c.String("user"),
		c.String("exchange"),
	)
}

func defaultFactory() connectors.ConnectorFactory {
	config := connectors.GetConfig()
	return connectors.DefaultFactory(connectors.NewLimiterRegistry(config.RequestsPerSec, config.RequestsPerSec))
}
