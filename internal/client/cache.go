package client

import (
	"context"
	"encoding/json"
	"maps"
	"sync"

	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/record"
)

// Snapshot はキャッシュの内容のコピー。
type Snapshot struct {
	Collections Collections
	Settings    json.RawMessage
}

// Cache はAPIから取得したデータを保持し、管理操作の結果を反映する。
//
// 変更系のメソッドはサーバーがsuccess:trueを返した場合だけ手元のデータを更新する。
// 失敗時は手元のデータに触れずにエラーを返す。再試行はしない。
type Cache struct {
	client *Client

	mu          sync.RWMutex
	collections Collections
	settings    json.RawMessage
}

// NewCache はCacheの新しいインスタンスを生成する。
func NewCache(client *Client) *Cache {
	return &Cache{client: client, collections: Collections{}}
}

// Refresh は公開データを取得し直し、公開テーブルと設定を置き換える。
func (c *Cache) Refresh(ctx context.Context) error {
	data, err := c.client.GetAllData(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for table, rows := range data.Collections {
		c.collections[table] = rows
	}
	c.settings = data.Settings
	return nil
}

// RefreshAdmin は予約、購読者、生成プランを取得し直す。認証が必要。
// 設定は認証情報を含む完全なものに置き換える。
func (c *Cache) RefreshAdmin(ctx context.Context) error {
	data, err := c.client.GetAdminData(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for table, rows := range data.Collections {
		c.collections[table] = rows
	}
	if data.Settings != nil {
		c.settings = data.Settings
	}
	return nil
}

// Snapshot は現在の内容のコピーを返す。返り値を変更してもキャッシュには影響しない。
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cols := make(Collections, len(c.collections))
	for table, rows := range c.collections {
		cols[table] = copyRows(rows)
	}
	var settings json.RawMessage
	if c.settings != nil {
		settings = append(json.RawMessage(nil), c.settings...)
	}
	return Snapshot{Collections: cols, Settings: settings}
}

// Collection は指定テーブルのレコードのコピーを返す。
func (c *Cache) Collection(table string) []record.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyRows(c.collections[table])
}

// Add はレコードを作成し、成功したらサーバーが返したIDを付けて末尾に追加する。
func (c *Cache) Add(ctx context.Context, table string, item map[string]any) (string, error) {
	id, err := c.client.CRUD(ctx, table, record.OpCreate, "", item)
	if err != nil {
		return "", err
	}

	rec := record.Record(maps.Clone(item))
	if rec == nil {
		rec = record.Record{}
	}
	rec["id"] = id

	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections[table] = append(c.collections[table], rec)
	return id, nil
}

// Update はレコードを更新し、成功したら同じIDのレコードを置き換える。
// itemにはidを含める。
func (c *Cache) Update(ctx context.Context, table string, item map[string]any) error {
	if _, err := c.client.CRUD(ctx, table, record.OpUpdate, "", item); err != nil {
		return err
	}

	rec := record.Record(maps.Clone(item))
	id := rec.ID()

	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.collections[table]
	for i, r := range rows {
		if r.ID() == id {
			rows[i] = rec
		}
	}
	return nil
}

// Remove はレコードを削除し、成功したら手元からも取り除く。
func (c *Cache) Remove(ctx context.Context, table, id string) error {
	if _, err := c.client.CRUD(ctx, table, record.OpDelete, id, nil); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.collections[table]
	kept := rows[:0:0]
	for _, r := range rows {
		if r.ID() != id {
			kept = append(kept, r)
		}
	}
	c.collections[table] = kept
	return nil
}

// UpdateBookingStatus は予約のステータスだけを変更する。
func (c *Cache) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) error {
	data := map[string]any{"id": id, "status": string(status)}
	if _, err := c.client.CRUD(ctx, model.TableBookings, record.OpUpdate, "", data); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.collections[model.TableBookings] {
		if r.ID() == id {
			updated := maps.Clone(r)
			updated["status"] = string(status)
			c.collections[model.TableBookings][i] = updated
		}
	}
	return nil
}

// UpdateSettings はサイト設定を置き換え、成功したら手元の設定も置き換える。
func (c *Cache) UpdateSettings(ctx context.Context, settings json.RawMessage) error {
	if err := c.client.UpdateSettings(ctx, settings); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = append(json.RawMessage(nil), settings...)
	return nil
}

// copyRows はレコード一覧を1段深くコピーする。
func copyRows(rows []record.Record) []record.Record {
	if rows == nil {
		return nil
	}
	out := make([]record.Record, len(rows))
	for i, r := range rows {
		out[i] = maps.Clone(r)
	}
	return out
}
