package api

import "github.com/go-playground/validator/v10"

// Request bodies are validated on decode; handler.Decode calls Validate and
// surfaces validator.ValidationErrors which the handlers turn into 400s.

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (l LoginRequest) Validate() error {
	return validator.New().Struct(l)
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (r RefreshRequest) Validate() error {
	return validator.New().Struct(r)
}

type RevokeRequest struct {
	Token  string `json:"token" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

func (r RevokeRequest) Validate() error {
	return validator.New().Struct(r)
}
