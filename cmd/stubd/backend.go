package main

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
	"go.uber.org/zap"
)

type account struct {
	domain.AuthResponse
	password string
}

type backend struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	accounts map[string]*account // keyed by email
	tokens   map[string]string   // token -> email
	orders   map[string]*domain.Order
	sockets  map[*websocket.Conn]struct{}
}

func newBackend(logger *zap.Logger) *backend {
	b := &backend{
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		orders:   make(map[string]*domain.Order),
		sockets:  make(map[*websocket.Conn]struct{}),
	}
	b.seed()
	return b
}

func (b *backend) seed() {
	demo := &account{password: "secret123"}
	demo.ID = uuid.New().String()
	demo.Email = "demo@shipment.app"
	demo.Username = "demo"
	demo.FirstName = "Demo"
	demo.LastName = "Buyer"
	demo.Role = "user"
	demo.UserType = "buyer"
	b.accounts[demo.Email] = demo

	now := time.Now()
	for i, status := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusShipped} {
		order := &domain.Order{
			ID:              uuid.New().String(),
			Status:          status,
			TotalFiatAmount: "149.90",
			Items: []domain.OrderItem{{
				Quantity:   1,
				UnitPrice:  "149.90",
				TotalPrice: "149.90",
				Product: domain.Product{
					ID:   uuid.New().String(),
					Name: "Demo product",
				},
			}},
			Store:     domain.Store{ID: uuid.New().String(), Name: "Demo store"},
			Placer:    domain.OrderPlacer{ID: demo.ID, FirstName: demo.FirstName, LastName: demo.LastName, Email: demo.Email},
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
			UpdatedAt: now,
		}
		b.orders[order.ID] = order
	}
}

func (b *backend) register(router *gin.Engine) {
	router.POST("/api/auth/login", b.login)
	router.POST("/api/auth/register", b.registerAccount)
	router.POST("/api/auth/logout", b.logout)

	authed := router.Group("/", b.requireAuth)
	authed.GET("/api/profile", b.getProfile)
	authed.PUT("/api/profile", b.updateProfile)
	authed.GET("/api/orders/user", b.listOrders)
	authed.GET("/api/orders/:id", b.getOrder)
	authed.PUT("/api/orders/:id/status", b.updateOrderStatus)
	authed.POST("/api/qrcode/verify", b.verifyQR)

	router.GET("/socket", b.socket)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return c.Query("token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func (b *backend) requireAuth(c *gin.Context) {
	b.mu.Lock()
	email, ok := b.tokens[bearerToken(c)]
	b.mu.Unlock()
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set("email", email)
}

func (b *backend) login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[req.Email]
	if !ok || acct.password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token := uuid.New().String()
	b.tokens[token] = acct.Email

	resp := acct.AuthResponse
	resp.Token = token
	c.JSON(http.StatusOK, resp)
}

func (b *backend) registerAccount(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[req.Email]; exists {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	acct := &account{password: req.Password}
	acct.ID = uuid.New().String()
	acct.Email = req.Email
	acct.Username = req.Username
	acct.FirstName = req.FirstName
	acct.LastName = req.LastName
	acct.Role = req.Role
	acct.UserType = req.UserType
	acct.Store = req.Store
	b.accounts[acct.Email] = acct

	token := uuid.New().String()
	b.tokens[token] = acct.Email

	resp := acct.AuthResponse
	resp.Token = token
	c.JSON(http.StatusCreated, resp)
}

func (b *backend) logout(c *gin.Context) {
	b.mu.Lock()
	delete(b.tokens, bearerToken(c))
	b.mu.Unlock()
	c.Status(http.StatusOK)
}

func (b *backend) account(c *gin.Context) *account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[c.GetString("email")]
}

func (b *backend) getProfile(c *gin.Context) {
	c.JSON(http.StatusOK, b.account(c).AuthResponse)
}

func (b *backend) updateProfile(c *gin.Context) {
	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.accounts[c.GetString("email")]
	if other, exists := b.accounts[req.Email]; exists && other != acct {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
		return
	}

	delete(b.accounts, acct.Email)
	acct.FirstName = req.FirstName
	acct.LastName = req.LastName
	acct.Email = req.Email
	acct.Username = req.Username
	b.accounts[acct.Email] = acct
	for token := range b.tokens {
		if b.tokens[token] == c.GetString("email") {
			b.tokens[token] = acct.Email
		}
	}
	c.JSON(http.StatusOK, acct.AuthResponse)
}

func (b *backend) listOrders(c *gin.Context) {
	b.mu.Lock()
	out := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, *o)
	}
	b.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (b *backend) getOrder(c *gin.Context) {
	b.mu.Lock()
	order, ok := b.orders[c.Param("id")]
	b.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (b *backend) updateOrderStatus(c *gin.Context) {
	var req domain.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	b.mu.Lock()
	order, ok := b.orders[c.Param("id")]
	if ok {
		order.Status = req.Status
		order.UpdatedAt = time.Now()
	}
	b.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	b.broadcastOrderUpdate(order.ID, order.Status)
	c.JSON(http.StatusOK, order)
}

func (b *backend) verifyQR(c *gin.Context) {
	var req domain.VerifyQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	// Any payload that looks like one of our order ids verifies.
	b.mu.Lock()
	order, ok := b.orders[req.QRData]
	b.mu.Unlock()

	resp := domain.VerificationResponse{Success: ok}
	if ok {
		resp.Message = "Product verified"
		resp.Data.VerificationResult = domain.VerificationResult{
			IsAuthentic: true,
			VerifiedAt:  time.Now().Format(time.RFC3339),
			Order:       order,
			Store:       order.Store.Name,
		}
	} else {
		resp.Message = "Unknown QR code"
	}
	c.JSON(http.StatusOK, resp)
}

func (b *backend) socket(c *gin.Context) {
	token := bearerToken(c)
	b.mu.Lock()
	_, authed := b.tokens[token]
	b.mu.Unlock()
	if !authed {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Warn("Socket upgrade failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	b.sockets[conn] = struct{}{}
	b.mu.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.mu.Lock()
				delete(b.sockets, conn)
				b.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

func (b *backend) broadcastOrderUpdate(orderID string, status domain.OrderStatus) {
	frame := gin.H{
		"event": "order_update",
		"data":  gin.H{"orderId": orderID, "status": status},
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.sockets))
	for conn := range b.sockets {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(frame); err != nil {
			b.logger.Warn("Push write failed", zap.Error(err))
		}
	}
}
