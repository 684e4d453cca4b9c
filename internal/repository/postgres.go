// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/smolin/lunchorder-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderNotFound возвращается, если заказ на указанную дату не найден.
	ErrOrderNotFound = errors.New("order not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при сбоях сериализации, дедлоках и сетевых ошибках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, user model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, name, phone, company, is_admin)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		user.Login, user.PasswordHash, user.Name, user.Phone, user.Company, user.IsAdmin,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, user.Login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, name, phone, company, is_admin, created_at
		 FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Name, &u.Phone, &u.Company, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// UserExists проверяет существование пользователя с указанным идентификатором.
func (r *PostgresRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

// GetUsers возвращает список всех пользователей.
func (r *PostgresRepository) GetUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, login, name, phone, company, is_admin, created_at
		 FROM users
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Login, &u.Name, &u.Phone, &u.Company, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

// GetPolicy возвращает политику для пары (пользователь, товар) либо nil, если её нет.
func (r *PostgresRepository) GetPolicy(ctx context.Context, userID, productID int64) (*model.ProductPolicy, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, product_id, price, hidden, created_at, updated_at
		 FROM product_policies
		 WHERE user_id = $1 AND product_id = $2`,
		userID, productID,
	)

	var p model.ProductPolicy
	err := row.Scan(&p.ID, &p.UserID, &p.ProductID, &p.PriceCents, &p.Hidden, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}

	return &p, nil
}

// GetPoliciesByUser возвращает все политики пользователя.
func (r *PostgresRepository) GetPoliciesByUser(ctx context.Context, userID int64) ([]model.ProductPolicy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, product_id, price, hidden, created_at, updated_at
		 FROM product_policies
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select policies: %w", err)
	}
	defer rows.Close()

	var policies []model.ProductPolicy
	for rows.Next() {
		var p model.ProductPolicy
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProductID, &p.PriceCents, &p.Hidden, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return policies, nil
}

// UpsertPolicy сохраняет политику. Уникальный индекс (user_id, product_id)
// гарантирует одну строку на пару, конфликт разрешается обновлением.
func (r *PostgresRepository) UpsertPolicy(ctx context.Context, policy model.ProductPolicy) (*model.ProductPolicy, error) {
	var res model.ProductPolicy

	err := r.withRetry(ctx, func() error {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO product_policies (user_id, product_id, price, hidden)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, product_id)
			 DO UPDATE SET price = EXCLUDED.price, hidden = EXCLUDED.hidden, updated_at = now()
			 RETURNING id, user_id, product_id, price, hidden, created_at, updated_at`,
			policy.UserID, policy.ProductID, policy.PriceCents, policy.Hidden,
		)
		return row.Scan(&res.ID, &res.UserID, &res.ProductID, &res.PriceCents, &res.Hidden, &res.CreatedAt, &res.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert policy: %w", err)
	}

	return &res, nil
}

// CreateOrder сохраняет заказ вместе с позициями в одной транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order model.Order) (*model.Order, error) {
	res := order

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO orders (user_id, delivery_date, comment, total_amount)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at, updated_at`,
			order.UserID, order.DeliveryDate, order.Comment, order.TotalAmountCents,
		).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			_, err = tx.Exec(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, quantity, amount, position)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				res.ID, item.ProductID, item.ProductName, item.Quantity, item.AmountCents, i,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// GetOrderByDeliveryDate возвращает первый заказ пользователя с датой доставки
// в полуинтервале [from, to). Заказы упорядочены по времени создания.
func (r *PostgresRepository) GetOrderByDeliveryDate(ctx context.Context, userID int64, from, to time.Time) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, delivery_date, comment, total_amount, created_at, updated_at
		 FROM orders
		 WHERE user_id = $1 AND delivery_date >= $2 AND delivery_date < $3
		 ORDER BY created_at
		 LIMIT 1`,
		userID, from, to,
	)

	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.DeliveryDate, &o.Comment, &o.TotalAmountCents, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_id, product_name, quantity, amount
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY position`,
		o.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.AmountCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &o, nil
}
