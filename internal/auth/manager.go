// Package auth owns the client's authentication state machine and
// propagates transitions to registered listeners.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/lotirium/blockchain-supply-chain-fintech/internal/api"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/credentials"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/dispatch"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/retry"
	"go.uber.org/zap"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

// User-facing messages. Anything leaving this package is already
// human-readable; raw transport errors do not cross the boundary.
const (
	MsgServerUnavailable = "Server is currently unavailable. Please try again later."
	MsgSessionExpired    = "Session expired. Please login again."
	MsgEmailRegistered   = "This email is already registered. Please use a different email address or try logging in."
	MsgEmailInUse        = "This email is already in use"
	MsgNoToken           = "No authentication token found"
	MsgProfileRequired   = "You must be logged in to update your profile"
)

// Listener receives auth-state transitions on the delivery context.
type Listener func(authenticated bool, token string)

// Manager drives login/register/logout/profile flows. Concurrent
// conflicting session mutations (two logins racing, login racing
// logout) are not serialized internally; callers must not issue them.
type Manager struct {
	client     *api.Client
	store      *credentials.Store
	dispatcher *dispatch.Serial
	logger     *zap.Logger

	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	order     []int
	nextID    int
}

func NewManager(client *api.Client, store *credentials.Store, dispatcher *dispatch.Serial, logger *zap.Logger) *Manager {
	m := &Manager{
		client:     client,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		listeners:  make(map[int]Listener),
	}
	if store.Load().Authenticated() {
		m.state = StateAuthenticated
	}
	return m
}

func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAuthenticated
}

func (m *Manager) Session() domain.Session {
	return m.store.Load()
}

// AddListener registers l and returns a handle for RemoveListener. If
// the state has already settled the listener is invoked immediately
// with the current state, so late registration never misses the
// transition it cares about.
func (m *Manager) AddListener(l Listener) int {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.order = append(m.order, id)
	settled := m.state != StateAuthenticating
	authenticated := m.state == StateAuthenticated
	m.mu.Unlock()

	if settled {
		token := m.store.Token()
		m.dispatcher.Post(func() { l(authenticated, token) })
	}
	return id
}

func (m *Manager) RemoveListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Login authenticates with the backend and persists the session.
// Blocking; run it on a background goroutine.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("Email is required")
	}
	if password == "" {
		return nil, errors.New("Password is required")
	}

	prev := m.setState(StateAuthenticating)

	resp, err := m.client.Login(ctx, domain.LoginRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
	})
	if err != nil {
		m.setState(prev)
		return nil, m.rewrite(err)
	}

	m.establishSession(resp)
	return resp, nil
}

// Register validates the input locally first; a missing field fails
// before any network call.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*domain.AuthResponse, error) {
	req, err := ValidateRegistration(in)
	if err != nil {
		return nil, err
	}

	prev := m.setState(StateAuthenticating)

	resp, err := m.client.Register(ctx, req)
	if err != nil {
		m.setState(prev)
		if api.IsConflict(err) {
			return nil, errors.New(MsgEmailRegistered)
		}
		return nil, m.rewrite(err)
	}

	m.establishSession(resp)
	return resp, nil
}

// Logout clears the local session immediately and notifies listeners;
// the server-side logout is best effort and its failure never reverts
// the local transition.
func (m *Manager) Logout() {
	token := m.store.Token()
	m.clearSession()

	if token == "" {
		return
	}
	go func() {
		if err := m.client.WithToken(token).Logout(context.Background()); err != nil {
			m.logger.Warn("Server logout failed", zap.Error(err))
		}
	}()
}

// GetProfile fetches the profile for the stored token. A 401 clears
// the local session, same side effect as logout.
func (m *Manager) GetProfile(ctx context.Context) (*domain.AuthResponse, error) {
	if m.store.Token() == "" {
		return nil, errors.New(MsgNoToken)
	}

	resp, err := m.client.GetProfile(ctx)
	if err != nil {
		if api.IsUnauthorized(err) || strings.Contains(err.Error(), "User not found") {
			m.clearSession()
			return nil, errors.New(MsgSessionExpired)
		}
		return nil, m.rewrite(err)
	}
	return resp, nil
}

// UpdateProfile requires an authenticated session and non-empty fields.
func (m *Manager) UpdateProfile(ctx context.Context, firstName, lastName, email, username string) (*domain.AuthResponse, error) {
	if !m.Authenticated() {
		return nil, errors.New(MsgProfileRequired)
	}
	if strings.TrimSpace(firstName) == "" {
		return nil, errors.New("First name is required")
	}
	if strings.TrimSpace(lastName) == "" {
		return nil, errors.New("Last name is required")
	}
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("Email is required")
	}
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("Username is required")
	}

	resp, err := m.client.UpdateProfile(ctx, domain.UpdateProfileRequest{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Email:     strings.TrimSpace(email),
		Username:  strings.TrimSpace(username),
	})
	if err != nil {
		if api.IsConflict(err) {
			return nil, errors.New(MsgEmailInUse)
		}
		if api.IsUnauthorized(err) {
			m.clearSession()
			return nil, errors.New(MsgSessionExpired)
		}
		return nil, m.rewrite(err)
	}

	// Re-persist: role or identity fields may have changed server-side.
	session := m.store.Load()
	session.Role = resp.Role
	session.UserType = resp.EffectiveUserType()
	if err := m.store.Save(session); err != nil {
		m.logger.Warn("Failed to persist updated session", zap.Error(err))
	}
	return resp, nil
}

func (m *Manager) establishSession(resp *domain.AuthResponse) {
	session := domain.Session{
		Token:    resp.Token,
		UserID:   resp.ID,
		Role:     resp.Role,
		UserType: resp.EffectiveUserType(),
	}
	if err := m.store.Save(session); err != nil {
		m.logger.Warn("Failed to persist session", zap.Error(err))
	}
	m.setState(StateAuthenticated)
	m.notify(true, session.Token)
}

func (m *Manager) clearSession() {
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("Failed to clear stored session", zap.Error(err))
	}
	m.setState(StateUnauthenticated)
	m.notify(false, "")
}

func (m *Manager) setState(s State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.state = s
	return prev
}

func (m *Manager) notify(authenticated bool, token string) {
	m.mu.Lock()
	snapshot := make([]Listener, 0, len(m.order))
	for _, id := range m.order {
		if l, ok := m.listeners[id]; ok {
			snapshot = append(snapshot, l)
		}
	}
	m.mu.Unlock()

	m.dispatcher.Post(func() {
		for _, l := range snapshot {
			l(authenticated, token)
		}
	})
}

// rewrite resolves transport errors to user-facing messages. HTTP
// errors pass through verbatim, transient network failures become the
// generic unavailable message.
func (m *Manager) rewrite(err error) error {
	var se *api.StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests {
			return errors.New(MsgServerUnavailable)
		}
		return errors.New(se.Message)
	}
	if errors.Is(err, api.ErrMalformedResponse) {
		return err
	}
	if retry.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return errors.New(MsgServerUnavailable)
	}
	return err
}
