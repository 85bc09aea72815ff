package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/skyline/internal/model"
)

// PostgresPlanRepo はPostgreSQLを使用したAI旅程生成記録リポジトリ。
type PostgresPlanRepo struct {
	db *sql.DB
}

// NewPostgresPlanRepo はPostgresPlanRepoを生成する。
func NewPostgresPlanRepo(db *sql.DB) *PostgresPlanRepo {
	return &PostgresPlanRepo{db: db}
}

// Create は利用記録を作成する。
func (r *PostgresPlanRepo) Create(ctx context.Context, plan *model.GeneratedPlan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO generated_plans (id, email, request, response, created_at)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb, $5)`,
		plan.ID, plan.Email, jsonOrNull(plan.Request), jsonOrNull(plan.Response), plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert generated plan: %w", err)
	}
	return nil
}

// CountByEmail は指定メールアドレスの利用回数を返す。
func (r *PostgresPlanRepo) CountByEmail(ctx context.Context, email string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM generated_plans WHERE lower(email) = lower($1)`,
		email,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count generated plans: %w", err)
	}
	return count, nil
}

// List は全利用記録を新しい順に返す。
func (r *PostgresPlanRepo) List(ctx context.Context) ([]*model.GeneratedPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, request, response, created_at
		 FROM generated_plans ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list generated plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.GeneratedPlan
	for rows.Next() {
		p := &model.GeneratedPlan{}
		var req, res []byte
		if err := rows.Scan(&p.ID, &p.Email, &req, &res, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan generated plan: %w", err)
		}
		p.Request = nullableJSON(req)
		p.Response = nullableJSON(res)
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate generated plans: %w", err)
	}
	return plans, nil
}

// jsonOrNull は空のJSONをNULLとして渡す。
func jsonOrNull(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// nullableJSON はNULL列をJSONのnullに変換する。
func nullableJSON(raw []byte) []byte {
	if raw == nil {
		return []byte("null")
	}
	return raw
}

// compile-time interface check
var _ PlanRepository = (*PostgresPlanRepo)(nil)
