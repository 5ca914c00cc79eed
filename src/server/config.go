package server

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port string `envconfig:"PORT" default:"8080"`
}

func GetConfig() *Config {
	config := &Config{}

	err := envconfig.Process("", config)
	if err != nil {
		panic(err.Error())
	}

	return config
}
