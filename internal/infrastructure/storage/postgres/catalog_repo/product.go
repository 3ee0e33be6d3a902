// Package catalog_repo provides the PostgreSQL product catalog repository.
package catalog_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/id"
	"vendstock/internal/domain/product"
	"vendstock/internal/infrastructure/storage/postgres"
)

const tableProducts = "products"

// ProductRepo implements product.Repository.
type ProductRepo struct {
	txManager  *postgres.TxManager
	selectCols []string
}

var _ product.Repository = (*ProductRepo)(nil)

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txManager:  txManager,
		selectCols: postgres.ExtractDBColumns[product.Product](),
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *ProductRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Create inserts a new product using its "db" tags.
func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	data := postgres.FilterColumns(postgres.StructToMap(p), r.selectCols)

	sql, args, err := r.Builder().Insert(tableProducts).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewConflict("product already exists").WithDetail("id", p.ID.String())
		}
		return fmt.Errorf("insert %s: %w", tableProducts, err)
	}
	return nil
}

// Update modifies a product with optimistic locking and bumps its version.
func (r *ProductRepo) Update(ctx context.Context, p *product.Product) error {
	q := r.updateQuery(p)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", tableProducts, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(tableProducts, p.ID.String())
	}
	p.Touch()
	return nil
}

func (r *ProductRepo) updateQuery(p *product.Product) squirrel.UpdateBuilder {
	data := postgres.FilterColumns(postgres.StructToMap(p), r.selectCols, "id", "version")
	return r.Builder().
		Update(tableProducts).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": p.ID}).
		Where(squirrel.Eq{"version": p.Version})
}

func (r *ProductRepo) baseSelect() squirrel.SelectBuilder {
	return r.Builder().Select(r.selectCols...).From(tableProducts)
}

// GetByID retrieves a product.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	sql, args, err := r.baseSelect().Where(squirrel.Eq{"id": productID}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p product.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableProducts, productID.String())
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return &p, nil
}

// List retrieves products ordered by name.
func (r *ProductRepo) List(ctx context.Context, filter product.ListFilter) ([]*product.Product, error) {
	sql, args, err := r.listQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*product.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return items, nil
}

func (r *ProductRepo) listQuery(filter product.ListFilter) squirrel.SelectBuilder {
	q := r.baseSelect()
	if filter.ActiveOnly {
		q = q.Where(squirrel.Eq{"active": true})
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		q = q.Where(squirrel.ILike{"name": "%" + s + "%"})
	}
	q = q.OrderBy("name", "id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}
