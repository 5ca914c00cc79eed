package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"signalengine/src/connectors"
	"signalengine/src/database"
	"signalengine/src/dispatch"
	"signalengine/src/gate"
	"signalengine/src/server"

	logger "github.com/sirupsen/logrus"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	connConfig := connectors.GetConfig()
	limiters := connectors.NewLimiterRegistry(connConfig.RequestsPerSec, connConfig.RequestsPerSec)
	factory := connectors.DefaultFactory(limiters)

	stop := dispatch.NewEmergencyStop()
	dispatcher := dispatch.NewDispatcher(factory, stop)
	engine := dispatch.NewEngine(dispatcher, gate.New(gate.DefaultMaxAge))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dispatch.NewFillListener().Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start fill listener")
	}

	port := PORT
	if port == "" {
		port = server.GetConfig().Port
	}

	server.StartServer(port, engine, stop)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
