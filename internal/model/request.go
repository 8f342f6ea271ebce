package model

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type AuditQuery struct {
	Type   string
	UserID string
	Limit  int
}

type AuditEntry struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	Provider   string `json:"provider,omitempty"`
	IP         string `json:"ip,omitempty"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
