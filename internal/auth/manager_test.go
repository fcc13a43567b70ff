package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/api"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/credentials"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/dispatch"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeChannel records the connect/disconnect calls the auth listener
// wiring would forward to the realtime channel.
type fakeChannel struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
}

func (f *fakeChannel) Connect(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, token)
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeChannel) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connects...), f.disconnects
}

type fixture struct {
	manager  *Manager
	store    *credentials.Store
	channel  *fakeChannel
	requests *int64
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var requests int64
	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		handler.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(counting)
	t.Cleanup(srv.Close)

	dispatcher := dispatch.NewSerial()
	t.Cleanup(dispatcher.Close)

	store := credentials.NewStore(filepath.Join(t.TempDir(), "credentials.json"), zap.NewNop())
	exec := retry.NewExecutorWithRetries(0, zap.NewNop())
	client := api.NewClient(srv.URL, 2*time.Second, store, exec, zap.NewNop())
	manager := NewManager(client, store, dispatcher, zap.NewNop())

	channel := &fakeChannel{}
	manager.AddListener(func(authenticated bool, token string) {
		if authenticated && token != "" {
			channel.Connect(token)
		} else {
			channel.Disconnect()
		}
	})

	return &fixture{manager: manager, store: store, channel: channel, requests: &requests}
}

func (f *fixture) requestCount() int64 {
	return atomic.LoadInt64(f.requests)
}

func loginHandler(token string) http.Handler {
	router := gin.New()
	router.POST("/api/auth/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, domain.AuthResponse{
			Token: token,
			ID:    "u1",
			Role:  "user",
		})
	})
	return router
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Email:     "new@test.com",
		Password:  "password123",
		Username:  "newuser",
		FirstName: "New",
		LastName:  "User",
		UserType:  "buyer",
	}
}

func TestRegisterValidationFailsLocally(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*RegisterInput)
		message string
	}{
		{"missing email", func(in *RegisterInput) { in.Email = "" }, "Email is required"},
		{"missing password", func(in *RegisterInput) { in.Password = "" }, "Password must be at least 8 characters"},
		{"missing username", func(in *RegisterInput) { in.Username = " " }, "Username is required"},
		{"missing first name", func(in *RegisterInput) { in.FirstName = "" }, "First name is required"},
		{"missing last name", func(in *RegisterInput) { in.LastName = "" }, "Last name is required"},
		{"missing user type", func(in *RegisterInput) { in.UserType = "" }, "User type is required"},
		{"seller without store", func(in *RegisterInput) { in.UserType = "seller" }, "Store information is required for sellers"},
		{"seller missing store name", func(in *RegisterInput) {
			in.UserType = "seller"
			in.Store = &StoreInput{BusinessPhone: "123", BusinessAddress: "addr"}
		}, "Store name is required"},
		{"seller missing phone", func(in *RegisterInput) {
			in.UserType = "seller"
			in.Store = &StoreInput{Name: "shop", BusinessAddress: "addr"}
		}, "Business phone is required"},
		{"seller missing address", func(in *RegisterInput) {
			in.UserType = "seller"
			in.Store = &StoreInput{Name: "shop", BusinessPhone: "123"}
		}, "Business address is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, gin.New())
			in := validRegisterInput()
			tc.mutate(&in)

			_, err := f.manager.Register(context.Background(), in)
			require.Error(t, err)
			assert.EqualError(t, err, tc.message)
			assert.Zero(t, f.requestCount(), "validation failures must not reach the network")
			assert.False(t, f.manager.Authenticated())
		})
	}
}

func TestRegisterNormalizesSellerPayload(t *testing.T) {
	in := validRegisterInput()
	in.Email = "  seller@test.com "
	in.UserType = "seller"
	in.Store = &StoreInput{Name: " My Shop ", BusinessPhone: "123", BusinessAddress: "addr"}

	req, err := ValidateRegistration(in)
	require.NoError(t, err)
	assert.Equal(t, "seller", req.Role)
	assert.Equal(t, "seller@test.com", req.Email)
	require.NotNil(t, req.Store)
	assert.Equal(t, "My Shop", req.Store.Name)
	assert.Equal(t, "seller@test.com", req.Store.BusinessEmail)
	assert.False(t, req.Store.IsVerified)
	assert.Equal(t, "pending_verification", req.Store.Status)
}

func TestRegisterMapsBuyerRole(t *testing.T) {
	req, err := ValidateRegistration(validRegisterInput())
	require.NoError(t, err)
	assert.Equal(t, "user", req.Role)
	assert.Nil(t, req.Store)
}

func TestLoginSuccessEstablishesSession(t *testing.T) {
	f := newFixture(t, loginHandler("t1"))

	resp, err := f.manager.Login(context.Background(), "user@test.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.Token)
	assert.True(t, f.manager.Authenticated())
	assert.Equal(t, "t1", f.store.Token())

	require.Eventually(t, func() bool {
		connects, _ := f.channel.snapshot()
		return len(connects) == 1 && connects[0] == "t1"
	}, time.Second, 10*time.Millisecond, "realtime channel should receive connect(t1)")
}

func TestLoginValidatesInputLocally(t *testing.T) {
	f := newFixture(t, gin.New())

	_, err := f.manager.Login(context.Background(), "", "secret")
	assert.EqualError(t, err, "Email is required")

	_, err = f.manager.Login(context.Background(), "user@test.com", "")
	assert.EqualError(t, err, "Password is required")

	assert.Zero(t, f.requestCount())
}

func TestLoginRejectionSurfacesVerbatim(t *testing.T) {
	router := gin.New()
	router.POST("/api/auth/login", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	})
	f := newFixture(t, router)

	_, err := f.manager.Login(context.Background(), "user@test.com", "wrong")
	assert.EqualError(t, err, "Invalid email or password")
	assert.False(t, f.manager.Authenticated())
	assert.Empty(t, f.store.Token())
}

func TestLoginTransientFailureRewritten(t *testing.T) {
	// Point the manager at a dead endpoint.
	dead := httptest.NewServer(gin.New())
	dead.Close()

	store := credentials.NewStore(filepath.Join(t.TempDir(), "c.json"), zap.NewNop())
	dispatcher := dispatch.NewSerial()
	t.Cleanup(dispatcher.Close)
	client := api.NewClient(dead.URL, time.Second, store, retry.NewExecutorWithRetries(0, zap.NewNop()), zap.NewNop())
	manager := NewManager(client, store, dispatcher, zap.NewNop())

	_, err := manager.Login(context.Background(), "user@test.com", "secret")
	assert.EqualError(t, err, MsgServerUnavailable)
	assert.False(t, manager.Authenticated())
}

func TestRegisterConflict(t *testing.T) {
	router := gin.New()
	router.POST("/api/auth/register", func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate"})
	})
	f := newFixture(t, router)

	_, err := f.manager.Register(context.Background(), validRegisterInput())
	assert.EqualError(t, err, MsgEmailRegistered)
}

func TestLogoutIsImmediateAndBestEffort(t *testing.T) {
	released := make(chan struct{})
	router := gin.New()
	router.POST("/api/auth/logout", func(c *gin.Context) {
		<-released // server logout hangs; local transition must not wait
		c.Status(http.StatusOK)
	})
	f := newFixture(t, router)
	t.Cleanup(func() { close(released) })

	// Let the registration replay (unauthenticated -> disconnect) land
	// first so the logout delivery is observable on its own.
	require.Eventually(t, func() bool {
		_, disconnects := f.channel.snapshot()
		return disconnects == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.store.Save(domain.Session{Token: "t1", UserID: "u1", Role: "user"}))
	f.manager.setState(StateAuthenticated)

	f.manager.Logout()

	assert.False(t, f.manager.Authenticated())
	assert.Empty(t, f.store.Token())
	require.Eventually(t, func() bool {
		_, disconnects := f.channel.snapshot()
		return disconnects == 2
	}, time.Second, 10*time.Millisecond, "disconnect fires even while server logout is pending")
}

func TestGetProfileWithoutTokenIsLocalError(t *testing.T) {
	f := newFixture(t, gin.New())

	_, err := f.manager.GetProfile(context.Background())
	assert.EqualError(t, err, MsgNoToken)
	assert.Zero(t, f.requestCount())
}

func TestGetProfileUnauthorizedClearsSession(t *testing.T) {
	router := gin.New()
	router.GET("/api/profile", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	})
	f := newFixture(t, router)

	require.NoError(t, f.store.Save(domain.Session{Token: "stale", UserID: "u1"}))
	f.manager.setState(StateAuthenticated)

	_, err := f.manager.GetProfile(context.Background())
	assert.EqualError(t, err, MsgSessionExpired)
	assert.Empty(t, f.store.Token())
	assert.False(t, f.manager.Authenticated())
}

func TestUpdateProfileConflict(t *testing.T) {
	router := gin.New()
	router.PUT("/api/profile", func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate"})
	})
	f := newFixture(t, router)

	require.NoError(t, f.store.Save(domain.Session{Token: "t1", UserID: "u1"}))
	f.manager.setState(StateAuthenticated)

	_, err := f.manager.UpdateProfile(context.Background(), "A", "B", "a@b.c", "ab")
	assert.EqualError(t, err, MsgEmailInUse)
}

func TestUpdateProfileRequiresAuthentication(t *testing.T) {
	f := newFixture(t, gin.New())

	_, err := f.manager.UpdateProfile(context.Background(), "A", "B", "a@b.c", "ab")
	assert.EqualError(t, err, MsgProfileRequired)
	assert.Zero(t, f.requestCount())
}

func TestUpdateProfileValidatesFields(t *testing.T) {
	f := newFixture(t, gin.New())
	f.manager.setState(StateAuthenticated)

	cases := []struct {
		first, last, email, username string
		message                      string
	}{
		{"", "B", "a@b.c", "ab", "First name is required"},
		{"A", "", "a@b.c", "ab", "Last name is required"},
		{"A", "B", "", "ab", "Email is required"},
		{"A", "B", "a@b.c", "", "Username is required"},
	}
	for _, tc := range cases {
		_, err := f.manager.UpdateProfile(context.Background(), tc.first, tc.last, tc.email, tc.username)
		assert.EqualError(t, err, tc.message)
	}
	assert.Zero(t, f.requestCount())
}

func TestLateListenerReceivesSettledState(t *testing.T) {
	f := newFixture(t, loginHandler("t9"))

	_, err := f.manager.Login(context.Background(), "user@test.com", "secret")
	require.NoError(t, err)

	got := make(chan string, 1)
	f.manager.AddListener(func(authenticated bool, token string) {
		if authenticated {
			got <- token
		}
	})

	select {
	case token := <-got:
		assert.Equal(t, "t9", token)
	case <-time.After(time.Second):
		t.Fatal("listener registered after login never received the settled state")
	}
}

func TestRemoveListenerStopsDelivery(t *testing.T) {
	f := newFixture(t, loginHandler("t1"))

	var calls int64
	id := f.manager.AddListener(func(bool, string) { atomic.AddInt64(&calls, 1) })

	// Wait for the immediate replay, then deregister.
	require.Eventually(t, func() bool { return atomic.LoadInt64(&calls) == 1 }, time.Second, 10*time.Millisecond)
	f.manager.RemoveListener(id)

	_, err := f.manager.Login(context.Background(), "user@test.com", "secret")
	require.NoError(t, err)

	// The fixture channel listener still fires, proving delivery ran.
	require.Eventually(t, func() bool {
		connects, _ := f.channel.snapshot()
		return len(connects) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}
