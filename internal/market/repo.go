package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the postgres-backed store for products, cart entries and orders.
// Every stock write goes through a version-token compare-and-swap so that
// concurrent buyers can never both deduct from the same stale read.
type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, seller_id, title, description, price, stock, threshold,
	discount_percent, discount_valid_till, image_url, version, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Title, &p.Description, &p.Price,
		&p.Stock, &p.Threshold, &p.DiscountPercent, &p.DiscountValidTill,
		&p.ImageURL, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product: %w", ErrNotFound)
	}
	return p, err
}

func (r *Repo) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(r.DB.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id=$1`, id))
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+productCols+` FROM products ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) CreateProduct(ctx context.Context, p Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, seller_id, title, description, price, stock,
			threshold, discount_percent, discount_valid_till, image_url, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1)`,
		p.ID, p.SellerID, p.Title, p.Description, p.Price, p.Stock,
		p.Threshold, p.DiscountPercent, p.DiscountValidTill, p.ImageURL)
	return err
}

// UpdateProduct overwrites the seller-editable fields. The version bump makes
// any in-flight checkout that read the old row retry against the new stock.
func (r *Repo) UpdateProduct(ctx context.Context, p Product) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET title=$2, description=$3, price=$4, stock=$5,
			threshold=$6, discount_percent=$7, discount_valid_till=$8,
			image_url=$9, version=version+1, updated_at=now()
		WHERE id=$1`,
		p.ID, p.Title, p.Description, p.Price, p.Stock, p.Threshold,
		p.DiscountPercent, p.DiscountValidTill, p.ImageURL)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("product: %w", ErrNotFound)
	}
	return nil
}

// DeleteProductCascade removes a product together with the cart entries and
// orders that reference it, in one transaction.
func (r *Repo) DeleteProductCascade(ctx context.Context, id uuid.UUID) (carts, orders int, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `DELETE FROM cart_entries WHERE product_id=$1`, id)
	if err != nil {
		return 0, 0, err
	}
	carts = int(ct.RowsAffected())

	ct, err = tx.Exec(ctx, `DELETE FROM orders WHERE product_id=$1`, id)
	if err != nil {
		return 0, 0, err
	}
	orders = int(ct.RowsAffected())

	ct, err = tx.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return 0, 0, err
	}
	if ct.RowsAffected() != 1 {
		return 0, 0, fmt.Errorf("product: %w", ErrNotFound)
	}
	return carts, orders, tx.Commit(ctx)
}

func (r *Repo) ListCart(ctx context.Context, userID string) ([]CartEntry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, product_id, qty, created_at
		FROM cart_entries WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CartEntry
	for rows.Next() {
		var e CartEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProductID, &e.Qty, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertCartEntry merges quantity into an existing (user, product) row instead
// of inserting a duplicate.
func (r *Repo) UpsertCartEntry(ctx context.Context, userID string, productID uuid.UUID, qty int) (CartEntry, error) {
	var e CartEntry
	err := r.DB.QueryRow(ctx, `
		INSERT INTO cart_entries(id, user_id, product_id, qty)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET qty = cart_entries.qty + EXCLUDED.qty
		RETURNING id, user_id, product_id, qty, created_at`,
		uuid.New(), userID, productID, qty).
		Scan(&e.ID, &e.UserID, &e.ProductID, &e.Qty, &e.CreatedAt)
	return e, err
}

func (r *Repo) RemoveCartEntry(ctx context.Context, userID string, entryID uuid.UUID) error {
	ct, err := r.DB.Exec(ctx,
		`DELETE FROM cart_entries WHERE id=$1 AND user_id=$2`, entryID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("cart entry: %w", ErrNotFound)
	}
	return nil
}

// ApplyCheckout commits one checkout as a single transaction: CAS-deduct the
// stock for every item, insert the orders, delete the consumed cart rows.
// Any version mismatch aborts the whole batch with ErrConflict and nothing is
// applied; the orchestrator re-reads and retries.
func (r *Repo) ApplyCheckout(ctx context.Context, batch CheckoutBatch) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, d := range batch.Deductions {
		ct, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = stock - $2, version = version + 1, updated_at = now()
			WHERE id=$1 AND version=$3 AND stock >= $2`,
			d.ProductID, d.Qty, d.ExpectedVersion)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("product %s: %w", d.ProductID, ErrConflict)
		}
	}

	for _, o := range batch.Orders {
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders(id, product_id, user_id, qty, unit_price, total_amount, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID, o.ProductID, o.UserID, o.Qty, o.UnitPrice, o.TotalAmount, o.Status, o.CreatedAt); err != nil {
			return err
		}
	}

	for _, id := range batch.CartEntryIDs {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_entries WHERE id=$1`, id); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, product_id, user_id, qty, unit_price, total_amount, status, created_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.ProductID, &o.UserID, &o.Qty, &o.UnitPrice, &o.TotalAmount, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order: %w", ErrNotFound)
	}
	return o, err
}

// TransitionOrder flips an order's status only while it still holds `from`
// and restores the stock in the same transaction. A lost race (the order
// already moved on) is ErrInvalidTransition and never restores twice.
func (r *Repo) TransitionOrder(ctx context.Context, orderID uuid.UUID, from, to Status, restock Restock) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE orders SET status=$3 WHERE id=$1 AND status=$2`, orderID, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("order: %w", ErrNotFound)
		}
		return fmt.Errorf("order %s is not %s: %w", orderID, from, ErrInvalidTransition)
	}

	if restock.Qty > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = stock + $2, version = version + 1, updated_at = now()
			WHERE id=$1`, restock.ProductID, restock.Qty); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListOrders(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, user_id, qty, unit_price, total_amount, status, created_at
		FROM orders WHERE user_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ProductID, &o.UserID, &o.Qty, &o.UnitPrice,
			&o.TotalAmount, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
