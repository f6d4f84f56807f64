package api

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when the requested record does not
// exist.
var ErrNotFound = errors.New("not found")

type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsAdmin      bool
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	AvatarURL    string
}

// ProfileUpdate holds the editable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Email     *string `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatarUrl"`
}

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"priceCents"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Stock       int    `json:"stock"`
}

type Category struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

var orderStatuses = []string{
	string(StatusPending),
	string(StatusPaid),
	string(StatusShipped),
	string(StatusDelivered),
	string(StatusCancelled),
}

type OrderItem struct {
	ProductID      string `json:"productId"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Items           []OrderItem `json:"items"`
	ShippingAddress string      `json:"shippingAddress"`
	Note            string      `json:"note,omitempty"`
	Status          OrderStatus `json:"status"`
	TotalCents      int64       `json:"totalCents"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

type Users interface {
	ByUsername(ctx context.Context, username string) (User, error)
	ByEmail(ctx context.Context, email string) (User, error)
	ByID(ctx context.Context, id string) (User, error)
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (User, error)
}

type Catalog interface {
	// Products lists the catalog; an empty category means all.
	Products(ctx context.Context, category string) ([]Product, error)
	Product(ctx context.Context, id string) (Product, error)
	Categories(ctx context.Context) ([]Category, error)
}

type Orders interface {
	// Create assigns ID, timestamps and the pending status.
	Create(ctx context.Context, o Order) (Order, error)
	List(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, s OrderStatus) (Order, error)
}

type Notifier interface {
	PasswordReset(ctx context.Context, u User) error
}
