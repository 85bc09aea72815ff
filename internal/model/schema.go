package model

// ColumnKind はレコード列の値の種類を表す。
// APIでは型付きの値として扱い、DBにはKindに応じた表現で保存する。
type ColumnKind int

const (
	// KindText は文字列の列。
	KindText ColumnKind = iota
	// KindFloat は浮動小数点数の列。
	KindFloat
	// KindInt は整数の列。
	KindInt
	// KindBool は真偽値の列。DBには0/1で保存する。
	KindBool
	// KindJSON は配列・オブジェクトの列。DBにはJSON文字列で保存する。
	KindJSON
	// KindTimestamp は作成日時の列。
	KindTimestamp
)

// Column はレコードの1列を表す。
type Column struct {
	Name string
	Kind ColumnKind
}

// TableSchema は汎用CRUDで操作できるテーブルの定義。
// ここに定義されたテーブルと列以外はSQLに埋め込まれない。
type TableSchema struct {
	Table   string
	Columns []Column
	// SortColumn は一覧取得時の並び順に使う列。空の場合はcreated_at。
	SortColumn string
	SortDesc   bool
	// Defaulted はNOT NULLでDB側に既定値がある列。nullが渡された場合は書き込まない。
	Defaulted []string
}

// Column は列名から列定義を返す。
func (s TableSchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasDefault はnullの代わりにDBの既定値を使う列かを返す。
func (s TableSchema) HasDefault(name string) bool {
	for _, c := range s.Defaulted {
		if c == name {
			return true
		}
	}
	return false
}

// SortKey は一覧取得時の並び順の列を返す。
func (s TableSchema) SortKey() string {
	if s.SortColumn == "" {
		return colCreatedAt.Name
	}
	return s.SortColumn
}

// ColumnNames は列名の一覧を定義順で返す。
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// 共通列
var (
	colID        = Column{"id", KindText}
	colCreatedAt = Column{"created_at", KindTimestamp}
)

// 汎用CRUDの対象テーブル名
const (
	TablePackages     = "packages"
	TableDestinations = "destinations"
	TableServices     = "services"
	TableTestimonials = "testimonials"
	TableFAQs         = "faqs"
	TablePosts        = "posts"
	TableBookings     = "bookings"
	TableSubscribers  = "subscribers"
)

// recordSchemas は汎用CRUDの許可リスト。
var recordSchemas = map[string]TableSchema{
	TablePackages: {
		Table: TablePackages,
		Columns: []Column{
			colID,
			{"title", KindText},
			{"destination", KindText},
			{"type", KindText},
			{"price", KindFloat},
			{"hidePrice", KindBool},
			{"isFeatured", KindBool},
			{"duration", KindText},
			{"image", KindText},
			{"images", KindJSON},
			{"description", KindText},
			{"rating", KindFloat},
			{"inclusions", KindJSON},
			{"exclusions", KindJSON},
			{"detailedItinerary", KindJSON},
			colCreatedAt,
		},
	},
	TableDestinations: {
		Table: TableDestinations,
		Columns: []Column{
			colID,
			{"name", KindText},
			{"image", KindText},
			{"description", KindText},
			{"packageCount", KindInt},
			{"isFeatured", KindBool},
			{"insight", KindJSON},
			colCreatedAt,
		},
	},
	TableServices: {
		Table: TableServices,
		Columns: []Column{
			colID,
			{"title", KindText},
			{"iconName", KindText},
			{"description", KindText},
			{"fullDescription", KindText},
			{"image", KindText},
			colCreatedAt,
		},
	},
	TableTestimonials: {
		Table: TableTestimonials,
		Columns: []Column{
			colID,
			{"name", KindText},
			{"role", KindText},
			{"content", KindText},
			{"rating", KindFloat},
			{"image", KindText},
			colCreatedAt,
		},
	},
	TableFAQs: {
		Table: TableFAQs,
		Columns: []Column{
			colID,
			{"question", KindText},
			{"answer", KindText},
			colCreatedAt,
		},
	},
	TablePosts: {
		Table: TablePosts,
		Columns: []Column{
			colID,
			{"title", KindText},
			{"slug", KindText},
			{"content", KindText},
			{"excerpt", KindText},
			{"featured_image", KindText},
			{"author_name", KindText},
			{"tags", KindJSON},
			{"status", KindText},
			colCreatedAt,
		},
		SortColumn: "created_at",
		SortDesc:   true,
		Defaulted:  []string{"status"},
	},
	TableBookings: {
		Table: TableBookings,
		Columns: []Column{
			colID,
			{"date", KindTimestamp},
			{"customerName", KindText},
			{"customerEmail", KindText},
			{"customerPhone", KindText},
			{"serviceType", KindText},
			{"itemName", KindText},
			{"travelDate", KindText},
			{"travelers", KindInt},
			{"totalPrice", KindFloat},
			{"status", KindText},
			{"notes", KindText},
			colCreatedAt,
		},
		SortColumn: "date",
		SortDesc:   true,
		Defaulted:  []string{"customerName", "serviceType", "travelers", "totalPrice", "status"},
	},
	TableSubscribers: {
		Table: TableSubscribers,
		Columns: []Column{
			colID,
			{"email", KindText},
			colCreatedAt,
		},
		SortColumn: "created_at",
		SortDesc:   true,
	},
}

// publicTables は公開サイトの一括取得に含めるテーブル（順序付き）。
var publicTables = []string{
	TablePackages,
	TableDestinations,
	TableServices,
	TableTestimonials,
	TableFAQs,
	TablePosts,
}

// LookupSchema は許可リストからテーブル定義を返す。
func LookupSchema(table string) (TableSchema, bool) {
	s, ok := recordSchemas[table]
	return s, ok
}

// PublicTables は公開サイトの一括取得対象のテーブル名を返す。
func PublicTables() []string {
	out := make([]string, len(publicTables))
	copy(out, publicTables)
	return out
}
