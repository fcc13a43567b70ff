package domain

import (
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPacked     OrderStatus = "packed"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Order mirrors the backend order payload. Monetary amounts are decimal
// strings and must not be converted to floats on the way through.
type Order struct {
	ID              string          `json:"id"`
	Status          OrderStatus     `json:"status"`
	TotalFiatAmount string          `json:"total_fiat_amount"`
	Items           []OrderItem     `json:"items"`
	Store           Store           `json:"merchantStore"`
	Placer          OrderPlacer     `json:"orderPlacer"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Timeline        []TimelineEvent `json:"timeline,omitempty"`
}

type OrderItem struct {
	Quantity   int     `json:"quantity"`
	UnitPrice  string  `json:"unit_price"`
	TotalPrice string  `json:"total_price"`
	Product    Product `json:"product"`
}

type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

type Store struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type OrderPlacer struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type TimelineEvent struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type UpdateOrderStatusRequest struct {
	Status         OrderStatus `json:"status" binding:"required"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}
