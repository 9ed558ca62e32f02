package api

import (
	"net/http"
	"strings"

	"github.com/nugget/shopkeep/internal/store"
)

// RegisterRequest creates a customer account. A ThreadID binds the new
// customer to that conversation.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// LoginRequest authenticates a customer.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ThreadID string `json:"thread_id,omitempty"`
}

// AccountResponse is returned by register and login.
type AccountResponse struct {
	Customer *store.Customer `json:"customer"`
	ThreadID string          `json:"thread_id,omitempty"`
}

// handleRegister creates an account.
// POST /v1/accounts/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "accounts not configured")
		return
	}
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"username", req.Username},
		{"password", req.Password},
		{"email", req.Email},
		{"phone", req.Phone},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		s.errorResponse(w, http.StatusBadRequest, "missing "+strings.Join(missing, ", "))
		return
	}

	c, err := s.accounts.RegisterCustomer(r.Context(), store.Registration{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("customer registered", "customer_id", c.ID)
	s.bind(w, r, req.ThreadID, c, http.StatusCreated)
}

// handleLogin authenticates a customer.
// POST /v1/accounts/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "accounts not configured")
		return
	}
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.errorResponse(w, http.StatusBadRequest, "email and password are required")
		return
	}

	c, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.bind(w, r, req.ThreadID, c, http.StatusOK)
}

// bind attaches the customer to a thread, when one is named, and writes
// the account response.
func (s *Server) bind(w http.ResponseWriter, r *http.Request, threadID string, c *store.Customer, code int) {
	if threadID != "" {
		if err := s.engine.BindCustomer(r.Context(), threadID, c.ID); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, AccountResponse{Customer: c, ThreadID: threadID}, s.logger)
}
