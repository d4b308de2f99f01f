package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/campusfix/campusfix/internal/dbx"
	"github.com/campusfix/campusfix/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func whereClause(collection models.Collection, filter models.Filter, args *queryArgs) string {
	conds := []string{fmt.Sprintf("collection = %s", args.add(string(collection)))}
	conds = append(conds, compileFilter(filter, args)...)
	return "WHERE " + strings.Join(conds, " AND ")
}

func (r *PostgresRepository) List(ctx context.Context, collection models.Collection, filter models.Filter, sort models.Sort, offset, limit int) ([]models.Entity, error) {
	args := queryArgs{}
	where := whereClause(collection, filter, &args)
	query := fmt.Sprintf(`SELECT data FROM records %s %s LIMIT %s OFFSET %s`,
		where, sortClause(sort), args.add(limit), args.add(offset))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		e, err := models.Decode(collection, data)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) Count(ctx context.Context, collection models.Collection, filter models.Filter) (int, error) {
	args := queryArgs{}
	where := whereClause(collection, filter, &args)
	query := fmt.Sprintf(`SELECT count(*) FROM records %s`, where)

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) Get(ctx context.Context, collection models.Collection, id string) (models.Entity, error) {
	query := `SELECT data FROM records WHERE collection = $1 AND id = $2`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, string(collection), id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return models.Decode(collection, data)
}

func (r *PostgresRepository) Insert(ctx context.Context, e models.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	m := e.Meta()
	query :=
		`INSERT INTO records (collection, id, owner_id, created_at, data)
		 VALUES ($1, $2, $3, $4, $5)
		 `
	_, err = r.db.ExecContext(ctx, query, string(e.Collection()), m.ID, m.OwnerID, m.CreatedAt, data)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, e models.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	m := e.Meta()
	query := `UPDATE records SET data = $1 WHERE collection = $2 AND id = $3`

	res, err := r.db.ExecContext(ctx, query, data, string(e.Collection()), m.ID)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, collection models.Collection, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE collection = $1 AND id = $2`, string(collection), id)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}
