package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"merceria/backend/internal/domain"
	"merceria/backend/internal/store"
	"merceria/backend/internal/xid"
)

// Store is the pgx-backed repository. Variants and order line items are
// stored as JSONB alongside the scalar columns the queries filter on.
//
// Expected schema:
//
//	products(id text pk, sku text, name text, category text, description text,
//	         price_cents bigint, stock int, has_variants bool, variants jsonb,
//	         image text, colors jsonb, active bool, created_at, updated_at)
//	orders(id text pk, kind text, customer jsonb, delivery_method text,
//	       shipping jsonb, service jsonb, items jsonb, subtotal_cents bigint,
//	       delivery_fee_cents bigint, total_cents bigint, delivery_tier text,
//	       summary text, attended bool, version int, created_at)
//	users(username text pk, password text, role text, active bool, created_at)
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, description, price_cents, stock,
		       has_variants, variants, image, colors, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var variantsRaw, colorsRaw []byte
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Description,
		&p.PriceCents, &p.Stock, &p.HasVariants, &variantsRaw, &p.Image, &colorsRaw, &p.Active)
	if err != nil {
		return nil, err
	}
	if len(variantsRaw) > 0 {
		if err := json.Unmarshal(variantsRaw, &p.Variants); err != nil {
			return nil, err
		}
	}
	if len(colorsRaw) > 0 {
		if err := json.Unmarshal(colorsRaw, &p.Colors); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, category, description, price_cents, stock,
		       has_variants, variants, image, colors, active
		FROM products
		WHERE id = $1
	`, id)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidOrder
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.Active = true
	product.HasVariants = len(product.Variants) > 0

	variantsRaw, err := json.Marshal(product.Variants)
	if err != nil {
		return nil, err
	}
	colorsRaw, err := json.Marshal(product.Colors)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, description, price_cents, stock,
		                      has_variants, variants, image, colors, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
	`, product.ID, product.SKU, product.Name, product.Category, product.Description,
		product.PriceCents, product.Stock, product.HasVariants, variantsRaw, product.Image, colorsRaw, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidOrder
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidOrder
	}
	product.HasVariants = len(product.Variants) > 0

	variantsRaw, err := json.Marshal(product.Variants)
	if err != nil {
		return nil, err
	}
	colorsRaw, err := json.Marshal(product.Colors)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, category = $4, description = $5, price_cents = $6,
		    stock = $7, has_variants = $8, variants = $9, image = $10, colors = $11,
		    active = $12, updated_at = now()
		WHERE id = $1
	`, product.ID, product.SKU, product.Name, product.Category, product.Description,
		product.PriceCents, product.Stock, product.HasVariants, variantsRaw, product.Image, colorsRaw, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) SetProductStock(ctx context.Context, productID string, stock int) error {
	if productID == "" || stock < 0 {
		return store.ErrInvalidOrder
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = $2, updated_at = now() WHERE id = $1
	`, productID, stock)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetVariantStock rewrites the stock of one element of the variants JSONB
// array, matched by name. The update is a no-op (ErrNotFound) when neither
// the product nor the named variant exists.
func (s *Store) SetVariantStock(ctx context.Context, productID string, variantName string, stock int) error {
	if productID == "" || variantName == "" || stock < 0 {
		return store.ErrInvalidOrder
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET variants = (
			SELECT jsonb_agg(
				CASE WHEN v->>'name' = $2
				     THEN jsonb_set(v, '{stock}', to_jsonb($3::int))
				     ELSE v
				END
			)
			FROM jsonb_array_elements(variants) AS v
		),
		updated_at = now()
		WHERE id = $1
		  AND variants @> jsonb_build_array(jsonb_build_object('name', $2::text))
	`, productID, variantName, stock)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.Customer.Name == "" || order.Customer.Phone == "" {
		return nil, store.ErrInvalidOrder
	}
	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if order.Version < 1 {
		order.Version = 1
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	customerRaw, err := json.Marshal(order.Customer)
	if err != nil {
		return nil, err
	}
	shippingRaw, err := json.Marshal(order.Shipping)
	if err != nil {
		return nil, err
	}
	serviceRaw, err := json.Marshal(order.Service)
	if err != nil {
		return nil, err
	}
	itemsRaw, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, kind, customer, delivery_method, shipping, service, items,
		                    subtotal_cents, delivery_fee_cents, total_cents, delivery_tier,
		                    summary, attended, version, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, order.ID, order.Kind, customerRaw, order.DeliveryMethod, shippingRaw, serviceRaw, itemsRaw,
		order.SubtotalCents, order.DeliveryFeeCents, order.TotalCents, order.DeliveryTier,
		order.Summary, order.Attended, order.Version, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidOrder
		}
		return nil, err
	}

	created := order
	return &created, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var customerRaw, shippingRaw, serviceRaw, itemsRaw []byte
	err := row.Scan(&o.ID, &o.Kind, &customerRaw, &o.DeliveryMethod, &shippingRaw, &serviceRaw,
		&itemsRaw, &o.SubtotalCents, &o.DeliveryFeeCents, &o.TotalCents, &o.DeliveryTier,
		&o.Summary, &o.Attended, &o.Version, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(customerRaw, &o.Customer); err != nil {
		return nil, err
	}
	if len(shippingRaw) > 0 && string(shippingRaw) != "null" {
		if err := json.Unmarshal(shippingRaw, &o.Shipping); err != nil {
			return nil, err
		}
	}
	if len(serviceRaw) > 0 && string(serviceRaw) != "null" {
		if err := json.Unmarshal(serviceRaw, &o.Service); err != nil {
			return nil, err
		}
	}
	if len(itemsRaw) > 0 && string(itemsRaw) != "null" {
		if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
			return nil, err
		}
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}

const orderColumns = `id, kind, customer, delivery_method, shipping, service, items,
		subtotal_cents, delivery_fee_cents, total_cents, delivery_tier,
		summary, attended, version, created_at`

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, attended *bool, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
	`
	args := []any{}
	if attended != nil {
		query += ` WHERE attended = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, *attended, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) SetOrderAttended(ctx context.Context, id string, attended bool, expectedVersion int) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET attended = $2, version = version + 1
		WHERE id = $1 AND version = $3
	`, id, attended, expectedVersion)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Distinguish a missing order from a stale version.
		if _, getErr := s.GetOrderByID(ctx, id); errors.Is(getErr, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrVersionConflict
	}

	return s.GetOrderByID(ctx, id)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidOrder
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrInvalidOrder
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
