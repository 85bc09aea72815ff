package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/lib/pq"
)

// PostgresRecordRepo はPostgreSQLを使用した汎用レコードリポジトリ。
// テーブル名と列名はpq.QuoteIdentifierで引用し、値はすべてプレースホルダで渡す。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

// Insert はレコードを1件作成する。
func (r *PostgresRecordRepo) Insert(ctx context.Context, schema model.TableSchema, values map[string]any) error {
	cols, args, err := orderedColumns(schema, values)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("failed to insert into %s: no columns", schema.Table)
	}

	placeholders := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(schema.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", schema.Table, err)
	}
	return nil
}

// Update は指定IDのレコードのvaluesに含まれる列を更新する。
// 更新対象の列が無い場合は存在確認のみ行う。
func (r *PostgresRecordRepo) Update(ctx context.Context, schema model.TableSchema, id string, values map[string]any) (bool, error) {
	cols, args, err := orderedColumns(schema, values)
	if err != nil {
		return false, err
	}
	if len(cols) == 0 {
		return r.Exists(ctx, schema, id)
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c), i+1)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		pq.QuoteIdentifier(schema.Table),
		strings.Join(sets, ", "),
		len(args),
	)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", schema.Table, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete は指定IDのレコードを削除する。存在しない場合もエラーにしない。
func (r *PostgresRecordRepo) Delete(ctx context.Context, schema model.TableSchema, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pq.QuoteIdentifier(schema.Table))
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", schema.Table, err)
	}
	return nil
}

// Exists は指定IDのレコードが存在するかを返す。
func (r *PostgresRecordRepo) Exists(ctx context.Context, schema model.TableSchema, id string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", pq.QuoteIdentifier(schema.Table))
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", schema.Table, err)
	}
	return exists, nil
}

// List はテーブルの全レコードをスキーマの並び順で返す。
func (r *PostgresRecordRepo) List(ctx context.Context, schema model.TableSchema) ([]map[string]any, error) {
	names := schema.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pq.QuoteIdentifier(n)
	}

	direction := "ASC"
	if schema.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s %s NULLS LAST, id",
		strings.Join(quoted, ", "),
		pq.QuoteIdentifier(schema.Table),
		pq.QuoteIdentifier(schema.SortKey()),
		direction,
	)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", schema.Table, err)
	}
	defer rows.Close()

	var result []map[string]any
	for rows.Next() {
		dest := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", schema.Table, err)
		}

		row := make(map[string]any, len(names))
		for i, n := range names {
			row[n] = dest[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", schema.Table, err)
	}

	return result, nil
}

// orderedColumns はvaluesをスキーマの列定義順に並べる。
// スキーマに無い列が含まれる場合はエラーを返す。
func orderedColumns(schema model.TableSchema, values map[string]any) ([]string, []any, error) {
	for name := range values {
		if _, ok := schema.Column(name); !ok {
			return nil, nil, fmt.Errorf("unknown column %q for table %s", name, schema.Table)
		}
	}

	var cols []string
	var args []any
	for _, c := range schema.Columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, c.Name)
		args = append(args, v)
	}
	return cols, args, nil
}

// compile-time interface check
var _ RecordRepository = (*PostgresRecordRepo)(nil)
