package server

// SignupRequest registers a user.
type SignupRequest struct {
	Identity string `json:"identity" example:"alice@example.com"`
	Password string `json:"password" example:"correct horse battery"`
	Role     string `json:"role,omitempty" example:"USER"`
}

// SignupResponse describes the created user.
type SignupResponse struct {
	SubjectID string `json:"subject_id"`
	Identity  string `json:"identity"`
	Role      string `json:"role"`
}

// LoginRequest exchanges a password for a credential pair.
type LoginRequest struct {
	Identity string `json:"identity" example:"alice@example.com"`
	Password string `json:"password" example:"correct horse battery"`
}

// RefreshRequest exchanges the current refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse carries a credential pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type" example:"Bearer"`
}

// MeResponse is the identity attached to the request.
type MeResponse struct {
	SubjectID   string   `json:"subject_id"`
	Identity    string   `json:"identity"`
	Role        string   `json:"role"`
	Authorities []string `json:"authorities"`
}

// AdminPingResponse reports the approximate number of live credential records
// next to the number of registered users.
type AdminPingResponse struct {
	Status          string `json:"status"`
	ActiveRecords   int    `json:"active_records"`
	RegisteredUsers int64  `json:"registered_users"`
}

// HealthResponse reports store reachability.
type HealthResponse struct {
	Status      string `json:"status"`
	RedisRTTMs  int64  `json:"redis_rtt_ms,omitempty"`
	Description string `json:"description,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
