package game

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var (
	ErrGameNotFound        = errors.New("game not found")
	ErrInvalidConfig       = errors.New("invalid game config")
	ErrSessionActive       = errors.New("session already active")
	ErrSessionNotStarted   = errors.New("session not started")
	ErrDataIntegrity       = errors.New("lyric round failed integrity check")
	ErrProviderUnavailable = errors.New("lyric provider unavailable")
	ErrStaleFetch          = errors.New("stale lyric fetch ignored")
	ErrNotRecoverable      = errors.New("round is not in a recoverable state")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every violated field of the config wrapped in ErrInvalidConfig.
func (c GameConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
			return fe.Field() + ":" + fe.Tag()
		})
		return fmt.Errorf("%w: %v", ErrInvalidConfig, fields)
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}

// failureFor maps an error to what the presentation layer is allowed to see.
func failureFor(err error) *Failure {
	switch {
	case errors.Is(err, ErrDataIntegrity):
		return &Failure{Code: "data_integrity", Message: "This round could not be loaded.", Recoverable: false}
	case errors.Is(err, ErrInvalidConfig):
		return &Failure{Code: "invalid_config", Message: "This game's settings are not supported.", Recoverable: false}
	case errors.Is(err, ErrProviderUnavailable):
		return &Failure{Code: "provider_unavailable", Message: "Lyrics are unavailable right now. Try the round again.", Recoverable: true}
	default:
		return &Failure{Code: "internal", Message: "Something went wrong.", Recoverable: false}
	}
}
