// Package model содержит доменные сущности сервиса заказа обедов.
package model

import "time"

// User представляет зарегистрированного пользователя сервиса.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Name         string
	Phone        string
	Company      string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Product описывает товар внешнего каталога. Цена хранится в копейках.
type Product struct {
	ID         int64
	Name       string
	PriceCents int64
}

// ProductPolicy описывает индивидуальное правило пользователя для товара:
// переопределение цены и/или скрытие из каталога. PriceCents == nil означает
// отсутствие переопределения — действует цена каталога.
type ProductPolicy struct {
	ID         int64
	UserID     int64
	ProductID  int64
	PriceCents *int64
	Hidden     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderItem описывает одну позицию заказа с зафиксированной суммой.
type OrderItem struct {
	ProductID   int64
	ProductName string
	Quantity    int64
	AmountCents int64
}

// Order описывает заказ пользователя на указанную дату доставки.
type Order struct {
	ID               int64
	UserID           int64
	DeliveryDate     time.Time
	Comment          string
	Items            []OrderItem
	TotalAmountCents int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItemRequest описывает запрошенную позицию при создании заказа.
type OrderItemRequest struct {
	ProductID int64
	Quantity  int64
}
