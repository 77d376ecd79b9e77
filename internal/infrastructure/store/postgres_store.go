package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/customer"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/example/pos-ledger/internal/domain/user"
	"github.com/shopspring/decimal"
)

const (
	productColumns  = `id, name, price, current_stock, min_stock, is_available, version, created_at, updated_at`
	orderColumns    = `id, order_number, customer_id, user_id, status, subtotal, discount_amount, total_amount, payment_method, payment_status, payment_note, order_date, delivered_date, cancelled_date, cancel_reason, cancelled_by, created_at, updated_at`
	movementColumns = `id, product_id, movement_type, quantity, reason, user_id, new_stock, purchase_cost, created_at`
	userColumns     = `id, email, password_hash, name, role, is_active, created_at, updated_at`
	eventColumns    = `id, aggregate_id, aggregate_type, event_type, data, version, created_at`
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore implements Store on PostgreSQL. Row locks use SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTx{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return &apperr.ConflictError{Resource: "commit", Key: err.Error()}
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, s.db, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *PostgresStore) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	return getOrder(ctx, s.db, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
}

func (s *PostgresStore) ListOrders(ctx context.Context, filter OrderFilter) ([]*order.Order, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", string(filter.PaymentStatus))
	}
	if filter.PaymentMethod != "" {
		add("payment_method = $%d", string(filter.PaymentMethod))
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.NumberLike != "" {
		add("order_number ILIKE '%%' || $%d || '%%'", filter.NumberLike)
	}
	if !filter.From.IsZero() {
		add("order_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("order_date <= $%d", filter.To)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY order_date DESC, order_number DESC`
	query, args = withPage(query, args, filter.Page)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		if o.Items, err = loadItems(ctx, s.db, o.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func withPage(query string, args []any, p Page) (string, []any) {
	if p.Limit > 0 {
		args = append(args, p.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if p.Offset > 0 {
		args = append(args, p.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	return getProduct(ctx, s.db, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (s *PostgresStore) GetMovement(ctx context.Context, id string) (*inventory.Movement, error) {
	m, err := scanMovement(s.db.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM inventory_movements WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("movement", id)
	}
	return m, err
}

func (s *PostgresStore) ListMovements(ctx context.Context, filter MovementFilter) ([]*inventory.Movement, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("movement_type = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}

	query := `SELECT ` + movementColumns + ` FROM inventory_movements`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY seq ASC`
	query, args = withPage(query, args, filter.Page)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	movements := make([]*inventory.Movement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", email)
	}
	return u, err
}

func (s *PostgresStore) PendingEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE sent_at IS NULL ORDER BY seq ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var e Event
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Data = data
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) MarkEventSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE events SET sent_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event %s sent: %w", id, err)
	}
	return nil
}

// pgTx implements Tx on one *sql.Tx.
type pgTx struct {
	q querier
}

func (tx *pgTx) GetUser(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(tx.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", id)
	}
	return u, err
}

func (tx *pgTx) GetCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := tx.q.QueryRowContext(ctx,
		`SELECT id, name, email, phone, created_at FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("customer", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	return &c, nil
}

func (tx *pgTx) LockProduct(ctx context.Context, id string) (*product.Product, error) {
	return getProduct(ctx, tx.q, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

// SaveProductStock writes the stock counter. The version check catches writers that skipped the row lock.
func (tx *pgTx) SaveProductStock(ctx context.Context, p *product.Product) error {
	res, err := tx.q.ExecContext(ctx,
		`UPDATE products SET current_stock = $2, version = $3, updated_at = $4 WHERE id = $1 AND version = $5`,
		p.ID, p.CurrentStock, p.Version, p.UpdatedAt, p.Version-1,
	)
	if err != nil {
		return fmt.Errorf("save product %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &apperr.ConflictError{Resource: "product", Key: p.ID}
	}
	return nil
}

func (tx *pgTx) AppendMovement(ctx context.Context, m *inventory.Movement) error {
	cost := decimal.NullDecimal{}
	if m.PurchaseCost != nil {
		cost = decimal.NewNullDecimal(*m.PurchaseCost)
	}
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO inventory_movements (`+movementColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ProductID, string(m.Type), m.Quantity, m.Reason, m.UserID, m.NewStock, cost, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

// NextOrderSequence bumps the day's counter. The upserted row stays locked until commit,
// so concurrent creators for the same day queue behind each other.
func (tx *pgTx) NextOrderSequence(ctx context.Context, day string) (int, error) {
	var seq int
	err := tx.q.QueryRowContext(ctx,
		`INSERT INTO order_sequences (day, last_value) VALUES ($1, 1)
		 ON CONFLICT (day) DO UPDATE SET last_value = order_sequences.last_value + 1
		 RETURNING last_value`,
		day,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next order sequence for %s: %w", day, err)
	}
	return seq, nil
}

func (tx *pgTx) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := tx.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order number: %w", err)
	}
	return exists, nil
}

func (tx *pgTx) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		o.ID, o.Number, o.CustomerID, o.UserID, string(o.Status),
		o.Subtotal, o.DiscountAmount, o.TotalAmount,
		string(o.PaymentMethod), string(o.PaymentStatus), o.PaymentNote, o.OrderDate,
		nullTime(o.DeliveredDate), nullTime(o.CancelledDate), nullString(o.CancelReason), nullString(o.CancelledBy),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &apperr.ConflictError{Resource: "order_number", Key: o.Number}
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range o.Items {
		_, err := tx.q.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, item_total, line_no)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, o.ID, item.ProductID, item.Quantity, item.UnitPrice, item.ItemTotal, i+1,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (tx *pgTx) LockOrder(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, tx.q, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (tx *pgTx) UpdateOrder(ctx context.Context, o *order.Order) error {
	_, err := tx.q.ExecContext(ctx,
		`UPDATE orders SET status = $2, payment_status = $3, delivered_date = $4, cancelled_date = $5,
		 cancel_reason = $6, cancelled_by = $7, updated_at = $8
		 WHERE id = $1`,
		o.ID, string(o.Status), string(o.PaymentStatus),
		nullTime(o.DeliveredDate), nullTime(o.CancelledDate), nullString(o.CancelReason), nullString(o.CancelledBy),
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	return nil
}

func (tx *pgTx) AppendEvent(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	// Get next version
	var currentVersion int
	err := tx.q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1",
		aggregateID,
	).Scan(&currentVersion)
	if err != nil {
		return nil, fmt.Errorf("event version: %w", err)
	}

	event, err := newEvent(aggregateID, aggregateType, eventType, data, currentVersion+1)
	if err != nil {
		return nil, err
	}

	_, err = tx.q.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.AggregateID, event.AggregateType, event.EventType, []byte(event.Data), event.Version, event.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &apperr.ConflictError{Resource: "event_version", Key: aggregateID}
		}
		return nil, fmt.Errorf("append event: %w", err)
	}
	return event, nil
}

func getProduct(ctx context.Context, q querier, query, id string) (*product.Product, error) {
	var p product.Product
	err := q.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Price, &p.CurrentStock, &p.MinStock, &p.IsAvailable, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &p, nil
}

func getOrder(ctx context.Context, q querier, query, key string) (*order.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order", key)
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = loadItems(ctx, q, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o                         order.Order
		status, method, payment   string
		delivered, cancelled      sql.NullTime
		cancelReason, cancelledBy sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.UserID, &status,
		&o.Subtotal, &o.DiscountAmount, &o.TotalAmount,
		&method, &payment, &o.PaymentNote, &o.OrderDate,
		&delivered, &cancelled, &cancelReason, &cancelledBy,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(payment)
	if delivered.Valid {
		o.DeliveredDate = &delivered.Time
	}
	if cancelled.Valid {
		o.CancelledDate = &cancelled.Time
	}
	o.CancelReason = cancelReason.String
	o.CancelledBy = cancelledBy.String
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]order.Item, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price, item_total
		 FROM order_items WHERE order_id = $1 ORDER BY line_no ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load items for %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]order.Item, 0)
	for rows.Next() {
		var item order.Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.ItemTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanMovement(row rowScanner) (*inventory.Movement, error) {
	var (
		m     inventory.Movement
		mtype string
		cost  decimal.NullDecimal
	)
	if err := row.Scan(&m.ID, &m.ProductID, &mtype, &m.Quantity, &m.Reason, &m.UserID, &m.NewStock, &cost, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Type = inventory.MovementType(mtype)
	if cost.Valid {
		c := cost.Decimal
		m.PurchaseCost = &c
	}
	return &m, nil
}

func scanUser(row rowScanner) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
