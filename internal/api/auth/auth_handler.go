package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/FACorreiaa/im-auth/internal/api"
	"github.com/FACorreiaa/im-auth/internal/types"
)

const (
	msgDuplicateUser      = "Username already registered"
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidToken       = "Invalid token"
	msgInternal           = "Internal server error"
)

type AuthHandler struct {
	AuthService AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		AuthService: authService,
	}
}

// Register godoc
// @Summary      Register a user
// @Description  Creates a user account. The password is stored hashed.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        user body RegisterRequest true "New user"
// @Success      201 {object} UserResponse "Created user"
// @Failure      400 {object} api.ErrorBody "Username already registered or invalid input"
// @Failure      500 {object} api.ErrorBody "Internal Server Error"
// @Router       /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "Register"))

	var req RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode register request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.AuthService.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrDuplicateUser):
			api.ErrorResponse(w, r, http.StatusBadRequest, msgDuplicateUser)
		case errors.Is(err, types.ErrBadRequest):
			api.ErrorResponse(w, r, http.StatusBadRequest, validationMessage(err))
		default:
			l.ErrorContext(ctx, "Register failed", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	api.WriteJSONResponse(w, r, http.StatusCreated, toUserResponse(user))
}

// Login godoc
// @Summary      Log in
// @Description  Exchanges a username and password for a bearer access token. Accepts JSON or an OAuth2 password form.
// @Tags         Auth
// @Accept       json
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        credentials body LoginRequest true "Credentials"
// @Success      200 {object} types.AccessToken "Access token"
// @Failure      400 {object} api.ErrorBody "Malformed body"
// @Failure      401 {object} api.ErrorBody "Invalid credentials"
// @Failure      500 {object} api.ErrorBody "Internal Server Error"
// @Router       /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "Login"))

	req, err := decodeLoginRequest(w, r)
	if err != nil {
		l.WarnContext(ctx, "Failed to decode login request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.AuthService.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, types.ErrInvalidCredentials) {
			unauthorized(w, r, msgInvalidCredentials)
			return
		}
		l.ErrorContext(ctx, "Login failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternal)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	api.WriteJSONResponse(w, r, http.StatusOK, token)
}

// Profile godoc
// @Summary      Current user
// @Description  Returns the user identified by the bearer token.
// @Tags         Auth
// @Produce      json
// @Success      200 {object} UserResponse "Authenticated user"
// @Failure      401 {object} api.ErrorBody "Invalid token"
// @Security     BearerAuth
// @Router       /auth/profile [get]
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r.Context())
	if !ok {
		unauthorized(w, r, msgInvalidToken)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, toUserResponse(user))
}

func decodeLoginRequest(w http.ResponseWriter, r *http.Request) (LoginRequest, error) {
	var req LoginRequest
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	isForm := strings.HasPrefix(ct, "application/x-www-form-urlencoded")
	isMultipart := strings.HasPrefix(ct, "multipart/form-data")
	switch {
	case isForm || isMultipart:
		r.Body = http.MaxBytesReader(w, r.Body, api.MaxBodyBytes)
		var err error
		if isMultipart {
			err = r.ParseMultipartForm(api.MaxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return req, errors.New("body contains a malformed form")
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		req.GrantType = r.PostForm.Get("grant_type")
		req.Scope = r.PostForm.Get("scope")
	default:
		if err := api.DecodeJSONBody(w, r, &req); err != nil {
			return req, err
		}
	}
	if req.GrantType != "" && req.GrantType != "password" {
		return req, errors.New("grant_type must be password")
	}
	if req.Username == "" || req.Password == "" {
		return req, errors.New("username and password are required")
	}
	return req, nil
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	api.ErrorResponse(w, r, http.StatusUnauthorized, msg)
}

// validationMessage strips the sentinel prefix from wrapped bad-request errors.
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), types.ErrBadRequest.Error()+": ")
}
