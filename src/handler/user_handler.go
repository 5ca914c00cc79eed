package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"signalengine/src/model"
	"signalengine/src/repository"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type userWriter interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

type profileWriter interface {
	GetByUserID(ctx context.Context, userID uint) (*model.RiskProfile, error)
	Upsert(ctx context.Context, profile *model.RiskProfile) error
}

type createUserPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserHandler onboards a user with a hashed password and the default
// risk profile.
func CreateUserHandler(users userWriter, profiles profileWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createUserPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid create user payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		payload.Username = strings.TrimSpace(payload.Username)
		if payload.Username == "" || payload.Password == "" {
			http.Error(w, "username and password are required", http.StatusBadRequest)
			return
		}

		existing, err := users.GetByUsername(r.Context(), payload.Username)
		if err != nil {
			logger.WithError(err).Error("failed to check username")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if existing != nil {
			http.Error(w, "username already taken", http.StatusConflict)
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
		if err != nil {
			logger.WithError(err).Error("failed to hash password")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		user := &model.User{
			Username:     payload.Username,
			Email:        strings.TrimSpace(payload.Email),
			PasswordHash: string(hashed),
			Active:       true,
		}
		if err := users.Create(r.Context(), user); err != nil {
			logger.WithError(err).Error("failed to create user")
			http.Error(w, "Unable to create user", http.StatusInternalServerError)
			return
		}

		if err := profiles.Upsert(r.Context(), model.DefaultRiskProfile(user.ID)); err != nil {
			logger.WithError(err).WithField("user_id", user.ID).
				Error("failed to create default risk profile")
			http.Error(w, "Unable to create user", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, user)
	}
}

// DefaultCreateUserHandler wires the handler to the production repositories.
func DefaultCreateUserHandler() http.HandlerFunc {
	return CreateUserHandler(repository.NewUserRepository(), repository.NewRiskProfileRepository())
}

type updateRiskProfilePayload struct {
	Leverage             *int             `json:"leverage,omitempty"`
	TakeProfitMultiplier *decimal.Decimal `json:"take_profit_multiplier,omitempty"`
	StopLossMultiplier   *decimal.Decimal `json:"stop_loss_multiplier,omitempty"`
	BalancePercent       *int             `json:"balance_percent,omitempty"`
	MaxOpenPositions     *int             `json:"max_open_positions,omitempty"`
	Disabled             *bool            `json:"disabled,omitempty"`
}

// UpdateRiskProfileHandler applies partial updates to a user's risk settings.
// Profiles are only ever soft-disabled, never deleted.
func UpdateRiskProfileHandler(profiles profileWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}

		var payload updateRiskProfilePayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid risk profile payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		profile, err := profiles.GetByUserID(r.Context(), uint(userID))
		if err != nil {
			logger.WithError(err).Error("failed to load risk profile")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if profile == nil {
			profile = model.DefaultRiskProfile(uint(userID))
		}

		if payload.Leverage != nil {
			if *payload.Leverage < 1 || *payload.Leverage > 100 {
				http.Error(w, "leverage must be between 1 and 100", http.StatusBadRequest)
				return
			}
			profile.Leverage = *payload.Leverage
		}
		if payload.TakeProfitMultiplier != nil {
			if payload.TakeProfitMultiplier.LessThanOrEqual(decimal.Zero) {
				http.Error(w, "take_profit_multiplier must be positive", http.StatusBadRequest)
				return
			}
			profile.TakeProfitMultiplier = *payload.TakeProfitMultiplier
		}
		if payload.StopLossMultiplier != nil {
			if payload.StopLossMultiplier.LessThanOrEqual(decimal.Zero) {
				http.Error(w, "stop_loss_multiplier must be positive", http.StatusBadRequest)
				return
			}
			profile.StopLossMultiplier = *payload.StopLossMultiplier
		}
		if payload.BalancePercent != nil {
			if *payload.BalancePercent < 1 || *payload.BalancePercent > 100 {
				http.Error(w, "balance_percent must be between 1 and 100", http.StatusBadRequest)
				return
			}
			profile.BalancePercent = *payload.BalancePercent
		}
		if payload.MaxOpenPositions != nil {
			if *payload.MaxOpenPositions < 1 {
				http.Error(w, "max_open_positions must be at least 1", http.StatusBadRequest)
				return
			}
			profile.MaxOpenPositions = *payload.MaxOpenPositions
		}
		if payload.Disabled != nil {
			profile.Disabled = *payload.Disabled
		}

		if err := profiles.Upsert(r.Context(), profile); err != nil {
			logger.WithError(err).Error("failed to save risk profile")
			http.Error(w, "Unable to update risk profile", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

// DefaultUpdateRiskProfileHandler wires the handler to the production repository.
func DefaultUpdateRiskProfileHandler() http.HandlerFunc {
	return UpdateRiskProfileHandler(repository.NewRiskProfileRepository())
}
