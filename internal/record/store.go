// Package record は許可リストに登録されたテーブルに対する汎用CRUDを提供する。
package record

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/repository"
)

// Record はAPIでやり取りする1件のレコード。キーは列名。
type Record map[string]any

// ID はレコードのIDを文字列で返す。
func (r Record) ID() string {
	return idFrom(r)
}

// CRUD操作の種類
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// 更新で書き換えない列
var immutableColumns = map[string]bool{
	"id":         true,
	"created_at": true,
}

// OpObserver はCRUD操作の結果を受け取る。メトリクス収集に使用する。
type OpObserver interface {
	RecordCRUDOperation(table, op string, err error)
}

// Store は汎用レコードストア。
// テーブル名は許可リスト(model.LookupSchema)で検証し、ID生成を担う。
type Store struct {
	repo     repository.RecordRepository
	logger   *slog.Logger
	newID    func() string
	observer OpObserver
}

// Option はStoreの設定を変更する。
type Option func(*Store)

// WithIDGenerator はID生成関数を差し替える。
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// WithObserver はCRUD操作の結果の通知先を設定する。
func WithObserver(o OpObserver) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(repo repository.RecordRepository, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		repo:   repo,
		logger: logger,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply はop(create/update/delete)に応じてレコードを操作し、対象のIDを返す。
// IDはid引数、fields["id"]の順に参照し、いずれも無ければ生成する。
func (s *Store) Apply(ctx context.Context, table, op, id string, fields map[string]any) (string, error) {
	if id == "" {
		id = idFrom(fields)
	}

	switch op {
	case OpCreate:
		if id != "" {
			fields = withID(fields, id)
		}
		return s.Create(ctx, table, fields)
	case OpUpdate:
		if id == "" {
			return "", model.NewValidationError("更新にはidが必要です")
		}
		return id, s.Update(ctx, table, withID(fields, id))
	case OpDelete:
		if id == "" {
			return "", model.NewValidationError("削除にはidが必要です")
		}
		return id, s.Delete(ctx, table, id)
	default:
		return "", model.NewUnknownOperationError(op)
	}
}

// Create はレコードを作成し、IDを返す。
// fieldsにidが無い場合は新しいUUIDを割り当てる。
func (s *Store) Create(ctx context.Context, table string, fields map[string]any) (id string, err error) {
	defer func() { s.observe(table, OpCreate, err) }()

	schema, ok := model.LookupSchema(table)
	if !ok {
		return "", model.NewUnknownTableError(table)
	}

	id = idFrom(fields)
	if id == "" {
		id = s.newID()
	}

	values, err := encodeFields(schema, fields, false)
	if err != nil {
		return "", err
	}
	values["id"] = id

	if err := s.repo.Insert(ctx, schema, values); err != nil {
		return "", fmt.Errorf("レコードの作成に失敗しました: %w", err)
	}

	s.logger.Debug("record created", slog.String("table", table), slog.String("id", id))
	return id, nil
}

// Update はfieldsに含まれる列を部分更新する。idとcreated_atは書き換えない。
// 対象のレコードが存在しない場合はRECORD_NOT_FOUNDを返す。
func (s *Store) Update(ctx context.Context, table string, fields map[string]any) (err error) {
	defer func() { s.observe(table, OpUpdate, err) }()

	schema, ok := model.LookupSchema(table)
	if !ok {
		return model.NewUnknownTableError(table)
	}

	id := idFrom(fields)
	if id == "" {
		return model.NewValidationError("更新にはidが必要です")
	}

	values, err := encodeFields(schema, fields, true)
	if err != nil {
		return err
	}

	found, err := s.repo.Update(ctx, schema, id, values)
	if err != nil {
		return fmt.Errorf("レコードの更新に失敗しました: %w", err)
	}
	if !found {
		return model.NewRecordNotFoundError(table, id)
	}

	s.logger.Debug("record updated", slog.String("table", table), slog.String("id", id), slog.Int("fields", len(values)))
	return nil
}

// Delete はレコードを削除する。存在しないIDの削除はエラーにしない。
func (s *Store) Delete(ctx context.Context, table, id string) (err error) {
	defer func() { s.observe(table, OpDelete, err) }()

	schema, ok := model.LookupSchema(table)
	if !ok {
		return model.NewUnknownTableError(table)
	}

	if err := s.repo.Delete(ctx, schema, id); err != nil {
		return fmt.Errorf("レコードの削除に失敗しました: %w", err)
	}
	return nil
}

// ReadAll はテーブルの全レコードを返す。
// JSON列はデコードし、数値・真偽値の列は対応する型に変換する。
func (s *Store) ReadAll(ctx context.Context, table string) ([]Record, error) {
	schema, ok := model.LookupSchema(table)
	if !ok {
		return nil, model.NewUnknownTableError(table)
	}

	rows, err := s.repo.List(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("レコード一覧の取得に失敗しました: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(row))
		for name, v := range row {
			col, ok := schema.Column(name)
			if !ok {
				continue
			}
			rec[name] = decodeValue(col, v)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) observe(table, op string, err error) {
	if s.observer != nil {
		s.observer.RecordCRUDOperation(table, op, err)
	}
}

// encodeFields はfieldsをDBに渡す値に変換する。
// スキーマに無い列はVALIDATION_ERRORとする。
func encodeFields(schema model.TableSchema, fields map[string]any, skipImmutable bool) (map[string]any, error) {
	values := make(map[string]any, len(fields))
	var unknown []string

	for name, v := range fields {
		if name == "id" || (skipImmutable && immutableColumns[name]) {
			continue
		}
		col, ok := schema.Column(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		encoded, err := encodeValue(col, v)
		if err != nil {
			return nil, err
		}
		// 日時が空の場合とNOT NULLの列へのnullはDBの既定値に任せる
		if encoded == nil && (col.Kind == model.KindTimestamp || schema.HasDefault(name)) {
			continue
		}
		values[name] = encoded
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, model.NewValidationError(fmt.Sprintf("%s に存在しない項目です: %s", schema.Table, strings.Join(unknown, ", ")))
	}
	return values, nil
}

func idFrom(fields map[string]any) string {
	if fields == nil {
		return ""
	}
	switch v := fields["id"].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return encodeText(v)
	}
}

// withID はfieldsのコピーにidを設定して返す。
func withID(fields map[string]any, id string) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["id"] = id
	return out
}
