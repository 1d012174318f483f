package auth

import "github.com/FACorreiaa/im-auth/internal/types"

// RegisterRequest represents the register request body
type RegisterRequest struct {
	Username string `json:"username" example:"alice"`
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"s3cret-passw0rd"`
}

// LoginRequest represents the JSON login request body. The same fields are
// accepted as an OAuth2 password-grant form.
type LoginRequest struct {
	Username  string `json:"username" example:"alice"`
	Password  string `json:"password" example:"s3cret-passw0rd"`
	GrantType string `json:"grant_type,omitempty"`
	Scope     string `json:"scope,omitempty"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID       int64  `json:"id" example:"1"`
	Username string `json:"username" example:"alice"`
	Email    string `json:"email" example:"alice@example.com"`
}

func toUserResponse(u *types.UserIdentity) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
}
