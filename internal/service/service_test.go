package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smolin/lunchorder-system/internal/catalog"
	"github.com/smolin/lunchorder-system/internal/model"
	"github.com/smolin/lunchorder-system/internal/repository"
)

type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	users    []model.User
	usersErr error

	userExists    bool
	userExistsErr error

	getPolicyResp *model.ProductPolicy
	getPolicyErr  error

	policies    []model.ProductPolicy
	policiesErr error

	upserted  []model.ProductPolicy
	upsertErr error

	createdOrders  []model.Order
	createOrderErr error

	getOrderResp *model.Order
	getOrderErr  error
	getOrderFrom time.Time
	getOrderTo   time.Time
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, user model.User) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	return s.userExists, s.userExistsErr
}

func (s *stubRepo) GetUsers(ctx context.Context) ([]model.User, error) {
	return s.users, s.usersErr
}

func (s *stubRepo) GetPolicy(ctx context.Context, userID, productID int64) (*model.ProductPolicy, error) {
	return s.getPolicyResp, s.getPolicyErr
}

func (s *stubRepo) GetPoliciesByUser(ctx context.Context, userID int64) ([]model.ProductPolicy, error) {
	return s.policies, s.policiesErr
}

func (s *stubRepo) UpsertPolicy(ctx context.Context, policy model.ProductPolicy) (*model.ProductPolicy, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.upserted = append(s.upserted, policy)
	res := policy
	res.ID = int64(len(s.upserted))
	return &res, nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, order model.Order) (*model.Order, error) {
	if s.createOrderErr != nil {
		return nil, s.createOrderErr
	}
	s.createdOrders = append(s.createdOrders, order)
	res := order
	res.ID = int64(len(s.createdOrders))
	return &res, nil
}

func (s *stubRepo) GetOrderByDeliveryDate(ctx context.Context, userID int64, from, to time.Time) (*model.Order, error) {
	s.getOrderFrom = from
	s.getOrderTo = to
	return s.getOrderResp, s.getOrderErr
}

type stubCatalog struct {
	products []model.Product
	err      error
	calls    int
}

func (s *stubCatalog) GetProducts(ctx context.Context) ([]model.Product, error) {
	s.calls++
	return s.products, s.err
}

func ptrFloat(v float64) *float64 { return &v }

func ptrBool(v bool) *bool { return &v }

func ptrCents(v int64) *int64 { return &v }

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed := hashPassword("user", "correct")
	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Login:        "user",
			PasswordHash: hashed,
		},
	}

	svc := NewService(repo, nil)

	_, err := svc.AuthenticateUser(context.Background(), "user", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{
		createUserErr: repository.ErrUserExists,
	}
	svc := NewService(repo, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass", "Имя", "+79001234567", "ООО Ромашка")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestSetPolicy_NoFields(t *testing.T) {
	repo := &stubRepo{userExists: true}
	svc := NewService(repo, nil)

	_, err := svc.SetPolicy(context.Background(), 1, 1, nil, nil)
	if !errors.Is(err, ErrPolicyFieldsRequired) {
		t.Fatalf("expected ErrPolicyFieldsRequired, got %v", err)
	}
	if len(repo.upserted) != 0 {
		t.Fatalf("policy must not be written, got %d writes", len(repo.upserted))
	}
}

func TestSetPolicy_UserNotFound(t *testing.T) {
	repo := &stubRepo{userExists: false}
	svc := NewService(repo, nil)

	_, err := svc.SetPolicy(context.Background(), 1, 99, ptrFloat(10), nil)
	if !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(repo.upserted) != 0 {
		t.Fatalf("policy must not be written, got %d writes", len(repo.upserted))
	}
}

func TestSetPolicy_CreateDefaults(t *testing.T) {
	repo := &stubRepo{userExists: true}
	svc := NewService(repo, nil)

	policy, err := svc.SetPolicy(context.Background(), 7, 1, nil, ptrBool(true))
	if err != nil {
		t.Fatalf("SetPolicy error: %v", err)
	}
	if policy.PriceCents != nil {
		t.Fatalf("new policy without price must keep nil override, got %v", *policy.PriceCents)
	}
	if !policy.Hidden {
		t.Fatalf("hidden must be true")
	}
}

func TestSetPolicy_PartialUpdateKeepsPrice(t *testing.T) {
	repo := &stubRepo{
		userExists: true,
		getPolicyResp: &model.ProductPolicy{
			ID:         3,
			UserID:     1,
			ProductID:  7,
			PriceCents: ptrCents(1000),
			Hidden:     false,
		},
	}
	svc := NewService(repo, nil)

	policy, err := svc.SetPolicy(context.Background(), 7, 1, nil, ptrBool(true))
	if err != nil {
		t.Fatalf("SetPolicy error: %v", err)
	}
	if policy.PriceCents == nil || *policy.PriceCents != 1000 {
		t.Fatalf("price override must be unchanged, got %v", policy.PriceCents)
	}
	if !policy.Hidden {
		t.Fatalf("hidden must be updated to true")
	}
}

func TestSetPolicy_ConvertsPriceToCents(t *testing.T) {
	repo := &stubRepo{userExists: true}
	svc := NewService(repo, nil)

	policy, err := svc.SetPolicy(context.Background(), 7, 1, ptrFloat(128.50), nil)
	if err != nil {
		t.Fatalf("SetPolicy error: %v", err)
	}
	if policy.PriceCents == nil || *policy.PriceCents != 12850 {
		t.Fatalf("price = %v, want 12850 cents", policy.PriceCents)
	}
	if policy.Hidden {
		t.Fatalf("hidden must default to false")
	}
}

func TestGetProducts_AppliesPolicies(t *testing.T) {
	cat := &stubCatalog{
		products: []model.Product{
			{ID: 1, Name: "Суп", PriceCents: 1000},
			{ID: 2, Name: "Салат", PriceCents: 2000},
			{ID: 3, Name: "Десерт", PriceCents: 3000},
		},
	}
	repo := &stubRepo{
		policies: []model.ProductPolicy{
			{ProductID: 1, PriceCents: ptrCents(1500)},
			{ProductID: 2, Hidden: true},
			{ProductID: 3},
		},
	}
	svc := NewService(repo, cat)

	products, err := svc.GetProducts(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProducts error: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("len(products) = %d, want 2", len(products))
	}
	if products[0].ID != 1 || products[0].PriceCents != 1500 {
		t.Fatalf("override not applied: %+v", products[0])
	}
	if products[1].ID != 3 || products[1].PriceCents != 3000 {
		t.Fatalf("nil override must keep catalog price: %+v", products[1])
	}
}

func TestGetProducts_CatalogUnavailable(t *testing.T) {
	cat := &stubCatalog{err: catalog.ErrUnavailable}
	svc := NewService(&stubRepo{}, cat)

	_, err := svc.GetProducts(context.Background(), 1)
	if !errors.Is(err, catalog.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCreateOrder_TotalFromCatalogPrices(t *testing.T) {
	cat := &stubCatalog{
		products: []model.Product{
			{ID: 1, Name: "Суп", PriceCents: 1000},
			{ID: 2, Name: "Салат", PriceCents: 2000},
		},
	}
	repo := &stubRepo{}
	svc := NewService(repo, cat)

	order, err := svc.CreateOrder(context.Background(), 1, "2025-03-11", "", []model.OrderItemRequest{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.TotalAmountCents != 4000 {
		t.Fatalf("total = %d, want 4000", order.TotalAmountCents)
	}
	if len(order.Items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(order.Items))
	}
	if order.Items[0].AmountCents != 2000 || order.Items[0].ProductName != "Суп" {
		t.Fatalf("unexpected first item: %+v", order.Items[0])
	}
	if order.Items[1].AmountCents != 2000 {
		t.Fatalf("unexpected second item: %+v", order.Items[1])
	}
}

func TestCreateOrder_AppliesPriceOverride(t *testing.T) {
	cat := &stubCatalog{
		products: []model.Product{
			{ID: 1, Name: "Суп", PriceCents: 1000},
			{ID: 2, Name: "Салат", PriceCents: 2000},
		},
	}
	repo := &stubRepo{
		policies: []model.ProductPolicy{
			{ProductID: 1, PriceCents: ptrCents(1500)},
		},
	}
	svc := NewService(repo, cat)

	order, err := svc.CreateOrder(context.Background(), 1, "2025-03-11", "", []model.OrderItemRequest{
		{ProductID: 1, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.TotalAmountCents != 3000 {
		t.Fatalf("total = %d, want 3000", order.TotalAmountCents)
	}
}

func TestCreateOrder_HiddenProduct(t *testing.T) {
	cat := &stubCatalog{
		products: []model.Product{
			{ID: 2, Name: "Салат", PriceCents: 2000},
		},
	}
	repo := &stubRepo{
		policies: []model.ProductPolicy{
			{ProductID: 2, Hidden: true},
		},
	}
	svc := NewService(repo, cat)

	_, err := svc.CreateOrder(context.Background(), 1, "2025-03-11", "", []model.OrderItemRequest{
		{ProductID: 2, Quantity: 1},
	})
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}
	if len(repo.createdOrders) != 0 {
		t.Fatalf("order must not be persisted, got %d", len(repo.createdOrders))
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	cat := &stubCatalog{
		products: []model.Product{
			{ID: 1, Name: "Суп", PriceCents: 1000},
		},
	}
	repo := &stubRepo{}
	svc := NewService(repo, cat)

	_, err := svc.CreateOrder(context.Background(), 1, "2025-03-11", "", []model.OrderItemRequest{
		{ProductID: 1, Quantity: 1},
		{ProductID: 99, Quantity: 1},
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if len(repo.createdOrders) != 0 {
		t.Fatalf("order must not be persisted, got %d", len(repo.createdOrders))
	}
}

func TestCreateOrder_NonPositiveQuantity(t *testing.T) {
	cat := &stubCatalog{
		products: []model.Product{
			{ID: 1, Name: "Суп", PriceCents: 1000},
		},
	}
	repo := &stubRepo{}
	svc := NewService(repo, cat)

	_, err := svc.CreateOrder(context.Background(), 1, "2025-03-11", "", []model.OrderItemRequest{
		{ProductID: 1, Quantity: 0},
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if len(repo.createdOrders) != 0 {
		t.Fatalf("order must not be persisted, got %d", len(repo.createdOrders))
	}
}

func TestCreateOrder_InvalidDate(t *testing.T) {
	cat := &stubCatalog{}
	repo := &stubRepo{}
	svc := NewService(repo, cat)

	_, err := svc.CreateOrder(context.Background(), 1, "not-a-date", "", nil)
	if !errors.Is(err, ErrInvalidDeliveryDate) {
		t.Fatalf("expected ErrInvalidDeliveryDate, got %v", err)
	}
	if cat.calls != 0 {
		t.Fatalf("catalog must not be called for invalid date, got %d calls", cat.calls)
	}
}

func TestCreateOrder_CatalogUnavailable(t *testing.T) {
	cat := &stubCatalog{err: catalog.ErrUnavailable}
	repo := &stubRepo{}
	svc := NewService(repo, cat)

	_, err := svc.CreateOrder(context.Background(), 1, "2025-03-11", "", []model.OrderItemRequest{
		{ProductID: 1, Quantity: 1},
	})
	if !errors.Is(err, catalog.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(repo.createdOrders) != 0 {
		t.Fatalf("order must not be persisted, got %d", len(repo.createdOrders))
	}
}

func TestGetOrderByDeliveryDate_InvalidDate(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	_, err := svc.GetOrderByDeliveryDate(context.Background(), 1, "2025-13-40")
	if !errors.Is(err, ErrInvalidDeliveryDate) {
		t.Fatalf("expected ErrInvalidDeliveryDate, got %v", err)
	}
	if !repo.getOrderFrom.IsZero() {
		t.Fatalf("storage must not be queried for invalid date")
	}
}

func TestGetOrderByDeliveryDate_DayWindow(t *testing.T) {
	repo := &stubRepo{
		getOrderResp: &model.Order{ID: 1, UserID: 1},
	}
	svc := NewService(repo, nil)

	_, err := svc.GetOrderByDeliveryDate(context.Background(), 1, "2025-03-11")
	if err != nil {
		t.Fatalf("GetOrderByDeliveryDate error: %v", err)
	}

	wantFrom := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	if !repo.getOrderFrom.Equal(wantFrom) {
		t.Fatalf("from = %v, want %v", repo.getOrderFrom, wantFrom)
	}
	if !repo.getOrderTo.Equal(wantFrom.Add(24 * time.Hour)) {
		t.Fatalf("to = %v, want %v", repo.getOrderTo, wantFrom.Add(24*time.Hour))
	}
}

func TestGetOrderByDeliveryDate_NotFound(t *testing.T) {
	repo := &stubRepo{getOrderErr: repository.ErrOrderNotFound}
	svc := NewService(repo, nil)

	_, err := svc.GetOrderByDeliveryDate(context.Background(), 1, "2025-03-11")
	if !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
