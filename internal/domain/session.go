package domain

type Role string

const (
	RoleBuyer  Role = "user"
	RoleSeller Role = "seller"
)

// Session is the client's local record of authentication state.
// A session is authenticated exactly when Token is non-empty.
type Session struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	UserType string `json:"user_type"`
}

func (s Session) Authenticated() bool {
	return s.Token != ""
}

func (s Session) Empty() bool {
	return s == Session{}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type StoreInfo struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	BusinessEmail   string `json:"business_email"`
	BusinessPhone   string `json:"business_phone"`
	BusinessAddress string `json:"business_address"`
	IsVerified      bool   `json:"isVerified"`
	Status          string `json:"status"`
}

type RegisterRequest struct {
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	Username  string     `json:"username"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      string     `json:"role"`
	UserType  string     `json:"user_type"`
	Store     *StoreInfo `json:"store,omitempty"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Username  string `json:"username"`
}

// AuthResponse is the shape shared by login, register and the profile
// endpoints. Type mirrors role for accounts created before the two
// fields were split server-side.
type AuthResponse struct {
	Token     string     `json:"token,omitempty"`
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Role      string     `json:"role"`
	UserType  string     `json:"type"`
	LastLogin string     `json:"lastLogin,omitempty"`
	Store     *StoreInfo `json:"store,omitempty"`
}

// EffectiveUserType falls back to the role when the server omits type.
func (r AuthResponse) EffectiveUserType() string {
	if r.UserType != "" {
		return r.UserType
	}
	return r.Role
}
