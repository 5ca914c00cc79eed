package auth

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// WebhookToken authenticates signal producers posting to /webhook.
	WebhookToken string `envconfig:"WEBHOOK_TOKEN" required:"true"`

	// AdminToken authenticates the operator control surface under /admin
	// and /internal.
	AdminToken string `envconfig:"ADMIN_TOKEN" required:"true"`
}

func GetConfig() *Config {
	config := &Config{}

	err := envconfig.Process("", config)
	if err != nil {
		panic(err.Error())
	}

	return config
}
