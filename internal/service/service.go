// Package service реализует бизнес-логику сервиса заказа обедов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/smolin/lunchorder-system/internal/model"
	"github.com/smolin/lunchorder-system/internal/pricing"
	"github.com/smolin/lunchorder-system/internal/repository"
)

// ErrPolicyFieldsRequired возвращается, если в запросе политики не передано ни одно поле.
var (
	ErrPolicyFieldsRequired = errors.New("at least one of price or hidden required")
	// ErrInvalidDeliveryDate возвращается при некорректной дате доставки.
	ErrInvalidDeliveryDate = errors.New("invalid delivery date")
	// ErrProductNotFound возвращается, если запрошенный товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductUnavailable возвращается, если товар скрыт политикой пользователя.
	ErrProductUnavailable = errors.New("product is not available")
	// ErrInvalidQuantity возвращается при неположительном количестве в позиции заказа.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// deliveryDateLayout — формат даты доставки. Дата интерпретируется как
// календарный день в UTC.
const deliveryDateLayout = "2006-01-02"

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, user model.User) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	GetUsers(ctx context.Context) ([]model.User, error)
	GetPolicy(ctx context.Context, userID, productID int64) (*model.ProductPolicy, error)
	GetPoliciesByUser(ctx context.Context, userID int64) ([]model.ProductPolicy, error)
	UpsertPolicy(ctx context.Context, policy model.ProductPolicy) (*model.ProductPolicy, error)
	CreateOrder(ctx context.Context, order model.Order) (*model.Order, error)
	GetOrderByDeliveryDate(ctx context.Context, userID int64, from, to time.Time) (*model.Order, error)
}

// Catalog описывает контракт клиента внешнего каталога товаров.
type Catalog interface {
	GetProducts(ctx context.Context) ([]model.Product, error)
}

// Service содержит бизнес-логику сервиса заказа обедов.
type Service struct {
	repo    Repository
	catalog Catalog
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом каталога.
func NewService(repo Repository, catalog Catalog) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password, name, phone, company string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, model.User{
		Login:        login,
		PasswordHash: hashed,
		Name:         name,
		Phone:        phone,
		Company:      company,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его данные.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// GetUsers возвращает список всех пользователей.
func (s *Service) GetUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.GetUsers(ctx)
}

// SetPolicy создаёт или частично обновляет политику пользователя для товара.
// Непереданные поля сохраняют прежние значения, для новой политики действуют
// значения по умолчанию: без переопределения цены, товар не скрыт.
func (s *Service) SetPolicy(ctx context.Context, productID, userID int64, price *float64, hidden *bool) (*model.ProductPolicy, error) {
	if price == nil && hidden == nil {
		return nil, ErrPolicyFieldsRequired
	}

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", repository.ErrUserNotFound, userID)
	}

	policy := model.ProductPolicy{
		UserID:    userID,
		ProductID: productID,
	}

	existing, err := s.repo.GetPolicy(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		policy.PriceCents = existing.PriceCents
		policy.Hidden = existing.Hidden
	}

	if price != nil {
		cents := int64(math.Round(*price * 100))
		policy.PriceCents = &cents
	}
	if hidden != nil {
		policy.Hidden = *hidden
	}

	return s.repo.UpsertPolicy(ctx, policy)
}

// GetProducts возвращает каталог товаров с применёнными политиками пользователя:
// скрытые товары исключены, переопределённые цены подставлены.
func (s *Service) GetProducts(ctx context.Context, userID int64) ([]model.Product, error) {
	products, err := s.catalog.GetProducts(ctx)
	if err != nil {
		return nil, err
	}

	policies, err := s.repo.GetPoliciesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return pricing.Resolve(products, policies), nil
}

// CreateOrder проверяет и рассчитывает заказ по действующим ценам, затем сохраняет его.
// Любая некорректная позиция отменяет заказ целиком, запись происходит только
// после успешной проверки всех позиций.
func (s *Service) CreateOrder(ctx context.Context, userID int64, deliveryDate, comment string, items []model.OrderItemRequest) (*model.Order, error) {
	day, err := parseDeliveryDate(deliveryDate)
	if err != nil {
		return nil, err
	}

	products, err := s.catalog.GetProducts(ctx)
	if err != nil {
		return nil, err
	}

	productByID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}

	policies, err := s.repo.GetPoliciesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	policyByProduct := pricing.PolicyMap(policies)

	var totalCents int64
	orderItems := make([]model.OrderItem, 0, len(items))

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, item.ProductID)
		}

		product, ok := productByID[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrProductNotFound, item.ProductID)
		}

		priceCents, hiddenByPolicy := pricing.Effective(product, policyByProduct[item.ProductID])
		if hiddenByPolicy {
			return nil, fmt.Errorf("%w: %d", ErrProductUnavailable, item.ProductID)
		}

		amountCents := priceCents * item.Quantity
		totalCents += amountCents

		orderItems = append(orderItems, model.OrderItem{
			ProductID:   item.ProductID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			AmountCents: amountCents,
		})
	}

	return s.repo.CreateOrder(ctx, model.Order{
		UserID:           userID,
		DeliveryDate:     day,
		Comment:          comment,
		Items:            orderItems,
		TotalAmountCents: totalCents,
	})
}

// GetOrderByDeliveryDate возвращает заказ пользователя на указанный календарный день.
func (s *Service) GetOrderByDeliveryDate(ctx context.Context, userID int64, deliveryDate string) (*model.Order, error) {
	day, err := parseDeliveryDate(deliveryDate)
	if err != nil {
		return nil, err
	}

	return s.repo.GetOrderByDeliveryDate(ctx, userID, day, day.Add(24*time.Hour))
}

func parseDeliveryDate(value string) (time.Time, error) {
	day, err := time.Parse(deliveryDateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDeliveryDate, value)
	}
	return day.UTC(), nil
}
