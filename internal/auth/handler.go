package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/clientbook/service/internal/response"
	"github.com/clientbook/service/internal/user"
)

// emailRegex accepts anything shaped like local@domain.tld.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLen = 8

// Handler holds HTTP handlers for auth endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	Email    string  `json:"email"    example:"ana@example.com"`
	Password string  `json:"password" example:"hunter2hunter2"`
	FullName *string `json:"fullName,omitempty" example:"Ana Perez"`
}

type loginRequest struct {
	Email    string `json:"email"    example:"ana@example.com"`
	Password string `json:"password" example:"hunter2hunter2"`
}

type tokenData struct {
	Token string     `json:"token" example:"eyJhbGci..."`
	User  *user.User `json:"user"`
}

// Register godoc
//
//	@Summary		Register
//	@Description	Create an account and receive a JWT bearer token.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		registerRequest	true	"Credentials"
//	@Success		201		{object}	response.Envelope{data=tokenData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !emailRegex.MatchString(req.Email) {
		response.BadRequest(w, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLen {
		response.BadRequest(w, "password must be at least 8 characters")
		return
	}

	token, u, err := h.svc.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			response.Conflict(w, "email already registered")
			return
		}
		response.InternalError(w)
		return
	}

	response.Created(w, tokenData{Token: token, User: u})
}

// Login godoc
//
//	@Summary		Login
//	@Description	Exchange email and password for a JWT bearer token.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	response.Envelope{data=tokenData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	token, u, err := h.svc.Login(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(w, "invalid email or password")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, tokenData{Token: token, User: u})
}
