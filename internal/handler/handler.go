// Package handler содержит HTTP-обработчики API сервиса заказа обедов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/smolin/lunchorder-system/internal/catalog"
	"github.com/smolin/lunchorder-system/internal/middleware"
	"github.com/smolin/lunchorder-system/internal/model"
	"github.com/smolin/lunchorder-system/internal/repository"
	"github.com/smolin/lunchorder-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password, name, phone, company string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	GetUsers(ctx context.Context) ([]model.User, error)
	SetPolicy(ctx context.Context, productID, userID int64, price *float64, hidden *bool) (*model.ProductPolicy, error)
	GetProducts(ctx context.Context, userID int64) ([]model.Product, error)
	CreateOrder(ctx context.Context, userID int64, deliveryDate, comment string, items []model.OrderItemRequest) (*model.Order, error)
	GetOrderByDeliveryDate(ctx context.Context, userID int64, deliveryDate string) (*model.Order, error)
}

// Handler реализует HTTP-обработчики API сервиса заказа обедов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func cents(v int64) float64 {
	return float64(v) / 100
}

func centsPtr(v *int64) *float64 {
	if v == nil {
		return nil
	}
	r := cents(*v)
	return &r
}

type registerRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.Name, req.Phone, req.Company)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID, false)
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID, user.IsAdmin)
	w.WriteHeader(http.StatusOK)
}

type productResponse struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// GetProducts возвращает каталог с ценами и видимостью текущего пользователя.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	products, err := h.service.GetProducts(r.Context(), userID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnavailable) {
			h.logger.Error("product catalog unavailable", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		h.logger.Error("get products error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse{
			ID:    p.ID,
			Name:  p.Name,
			Price: cents(p.PriceCents),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type orderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type createOrderRequest struct {
	DeliveryDate string             `json:"delivery_date"`
	Comment      string             `json:"comment,omitempty"`
	Items        []orderItemRequest `json:"items"`
}

type orderItemResponse struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int64   `json:"quantity"`
	Amount      float64 `json:"amount"`
}

type orderResponse struct {
	ID           int64               `json:"id"`
	DeliveryDate string              `json:"delivery_date"`
	Comment      string              `json:"comment,omitempty"`
	Items        []orderItemResponse `json:"items"`
	TotalAmount  float64             `json:"total_amount"`
	CreatedAt    string              `json:"created_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Amount:      cents(item.AmountCents),
		})
	}

	return orderResponse{
		ID:           o.ID,
		DeliveryDate: o.DeliveryDate.UTC().Format("2006-01-02"),
		Comment:      o.Comment,
		Items:        items,
		TotalAmount:  cents(o.TotalAmountCents),
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
	}
}

// CreateOrder создаёт заказ текущего пользователя на указанную дату доставки.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	items := make([]model.OrderItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, model.OrderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.service.CreateOrder(r.Context(), userID, req.DeliveryDate, req.Comment, items)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDeliveryDate),
			errors.Is(err, service.ErrProductNotFound),
			errors.Is(err, service.ErrProductUnavailable),
			errors.Is(err, service.ErrInvalidQuantity):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, catalog.ErrUnavailable):
			h.logger.Error("product catalog unavailable", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		default:
			h.logger.Error("create order error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toOrderResponse(order)); err != nil {
		h.logger.Error("encode order response", zap.Error(err))
	}
}

// GetOrder возвращает заказ текущего пользователя на указанный день доставки.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	deliveryDate := r.URL.Query().Get("delivery_date")

	order, err := h.service.GetOrderByDeliveryDate(r.Context(), userID, deliveryDate)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidDeliveryDate):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("get order error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toOrderResponse(order)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type policyRequest struct {
	ProductID int64    `json:"product_id"`
	UserID    int64    `json:"user_id"`
	Price     *float64 `json:"price,omitempty"`
	Hidden    *bool    `json:"hidden,omitempty"`
}

type policyResponse struct {
	ID        int64    `json:"id"`
	UserID    int64    `json:"user_id"`
	ProductID int64    `json:"product_id"`
	Price     *float64 `json:"price"`
	Hidden    bool     `json:"hidden"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// SetProductPolicy создаёт или обновляет политику пользователя для товара.
// Доступно только администраторам.
func (h *Handler) SetProductPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	policy, err := h.service.SetPolicy(r.Context(), req.ProductID, req.UserID, req.Price, req.Hidden)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPolicyFieldsRequired):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrUserNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("set product policy error", zap.Error(err),
				zap.Int64("userID", req.UserID), zap.Int64("productID", req.ProductID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	resp := policyResponse{
		ID:        policy.ID,
		UserID:    policy.UserID,
		ProductID: policy.ProductID,
		Price:     centsPtr(policy.PriceCents),
		Hidden:    policy.Hidden,
		CreatedAt: policy.CreatedAt.Format(time.RFC3339),
		UpdatedAt: policy.UpdatedAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type userResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}

// GetUsers возвращает список всех пользователей. Доступно только администраторам.
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.GetUsers(r.Context())
	if err != nil {
		h.logger.Error("get users error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{
			ID:        u.ID,
			Login:     u.Login,
			Name:      u.Name,
			Phone:     u.Phone,
			Company:   u.Company,
			IsAdmin:   u.IsAdmin,
			CreatedAt: u.CreatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
