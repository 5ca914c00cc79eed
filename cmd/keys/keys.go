package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalengine/src/connectors"
	"signalengine/src/model"
	"signalengine/src/repository"
	"signalengine/src/security"

	logger "github.com/sirupsen/logrus"
)

// Manager performs the credential operations exposed through the CLI:
// storing encrypted key material, toggling it and validating it against the
// live exchange.
type Manager struct {
	users     *repository.UserRepository
	creds     *repository.UserExchangeRepository
	exchanges *repository.ExchangeRepository
	factory   connectors.ConnectorFactory
}

func NewManager(factory connectors.ConnectorFactory) *Manager {
	return &Manager{
		users:     repository.NewUserRepository(),
		creds:     repository.NewUserExchangeRepository(),
		exchanges: repository.NewExchangeRepository(),
		factory:   factory,
	}
}

// Set encrypts and stores (or rotates) a user's API key pair.
func (m *Manager) Set(ctx context.Context, username, exchangeName, apiKey, apiSecret, environment string) error {
	user, exchange, err := m.lookup(ctx, username, exchangeName)
	if err != nil {
		return err
	}

	if environment != model.EnvironmentMainnet && environment != model.EnvironmentTestnet {
		return fmt.Errorf("environment must be %s or %s", model.EnvironmentMainnet, model.EnvironmentTestnet)
	}

	encKey, err := security.EncryptString(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}
	encSecret, err := security.EncryptString(apiSecret)
	if err != nil {
		return fmt.Errorf("encrypt api secret: %w", err)
	}

	err = m.creds.Upsert(ctx, &model.UserExchange{
		UserID:       user.ID,
		ExchangeID:   exchange.ID,
		APIKeyEnc:    encKey,
		APISecretEnc: encSecret,
		Environment:  environment,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	logger.WithFields(logger.Fields{
		"user":        username,
		"exchange":    exchangeName,
		"environment": environment,
	}).Info("[keys] credential stored")

	return nil
}

// SetActive toggles the credential without touching the key material.
func (m *Manager) SetActive(ctx context.Context, username, exchangeName string, active bool) error {
	user, exchange, err := m.lookup(ctx, username, exchangeName)
	if err != nil {
		return err
	}

	if err := m.creds.SetActive(ctx, user.ID, exchange.ID, active); err != nil {
		return fmt.Errorf("toggle credential: %w", err)
	}

	logger.WithFields(logger.Fields{
		"user":     username,
		"exchange": exchangeName,
		"active":   active,
	}).Info("[keys] credential toggled")

	return nil
}

// Validate runs a live authenticated call against the exchange and stores
// the result on the credential row.
func (m *Manager) Validate(ctx context.Context, username, exchangeName string) error {
	user, exchange, err := m.lookup(ctx, username, exchangeName)
	if err != nil {
		return err
	}

	cred, err := m.creds.GetActiveByUserAndExchange(ctx, user.ID, exchange.ID)
	if err != nil {
		return err
	}
	if cred == nil {
		return fmt.Errorf("user %s has no active credential for %s", username, exchangeName)
	}

	apiKey, err := security.DecryptString(cred.APIKeyEnc)
	if err != nil {
		return fmt.Errorf("decrypt api key: %w", err)
	}
	apiSecret, err := security.DecryptString(cred.APISecretEnc)
	if err != nil {
		return fmt.Errorf("decrypt api secret: %w", err)
	}

	conn, err := m.factory(exchange.Name, apiKey, apiSecret, cred.Environment)
	if err != nil {
		return err
	}

	result := model.CredentialValidationOK
	validationErr := conn.ValidateCredentials(ctx)
	if validationErr != nil {
		result = model.CredentialValidationInvalid

		var credErr *connectors.CredentialError
		if errors.As(validationErr, &credErr) && credErr.IPBlocked {
			result = model.CredentialValidationBlocked
		}
	}

	if err := m.creds.UpdateValidation(ctx, cred.ID, result, time.Now()); err != nil {
		return fmt.Errorf("store validation result: %w", err)
	}

	logger.WithFields(logger.Fields{
		"user":     username,
		"exchange": exchangeName,
		"result":   result,
	}).Info("[keys] credential validated")

	if validationErr != nil {
		return fmt.Errorf("credential check failed: %w", validationErr)
	}
	return nil
}

func (m *Manager) lookup(ctx context.Context, username, exchangeName string) (*model.User, *model.Exchange, error) {
	user, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, fmt.Errorf("user %s not found", username)
	}

	exchange, err := m.exchanges.GetByName(ctx, exchangeName)
	if err != nil {
		return nil, nil, err
	}
	if exchange == nil {
		return nil, nil, fmt.Errorf("exchange %s not found", exchangeName)
	}

	return user, exchange, nil
}
