// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, record, mail, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeMissingToken          = "MISSING_TOKEN"
	ErrCodeInvalidTokenFormat    = "INVALID_TOKEN_FORMAT"
	ErrCodeInvalidTokenSignature = "INVALID_TOKEN_SIGNATURE"
	ErrCodeTokenExpired          = "TOKEN_EXPIRED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeUnknownTable          = "UNKNOWN_TABLE"
	ErrCodeUnknownAction         = "UNKNOWN_ACTION"
	ErrCodeUnknownOperation      = "UNKNOWN_OPERATION"
	ErrCodeRecordNotFound        = "RECORD_NOT_FOUND"
	ErrCodeInvalidStatus         = "INVALID_STATUS"
	ErrCodeMethodNotAllowed      = "METHOD_NOT_ALLOWED"
	ErrCodeSMTPNotConfigured     = "SMTP_NOT_CONFIGURED"
	ErrCodeMailFailed            = "MAIL_FAILED"
	ErrCodeUploadFailed          = "UPLOAD_FAILED"
	ErrCodeInvalidFile           = "INVALID_FILE"
	ErrCodeInvalidURL            = "INVALID_URL"
	ErrCodeSSRFBlocked           = "SSRF_BLOCKED"
	ErrCodeFetchFailed           = "FETCH_FAILED"
	ErrCodeParseFailed           = "PARSE_FAILED"
	ErrCodeSetupClosed           = "SETUP_CLOSED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証エラーを生成する。
// codeにはMISSING_TOKEN等の詳細コードを指定する。HTTPステータスはいずれも401となる。
func NewUnauthorizedError(code, message string) *APIError {
	return &APIError{
		Code:     code,
		Message:  message,
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnknownTableError は許可リスト外のテーブル指定エラーを生成する。
func NewUnknownTableError(table string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownTable,
		Message:  fmt.Sprintf("対象外のテーブルです: %s", table),
		Category: "validation",
		Action:   "packages, destinations, services, testimonials, faqs, posts, bookings, subscribers のいずれかを指定してください。",
	}
}

// NewUnknownActionError は未定義のactionエラーを生成する。
func NewUnknownActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownAction,
		Message:  fmt.Sprintf("不明なactionです: %s", action),
		Category: "validation",
		Action:   "actionパラメータを確認してください。",
	}
}

// NewUnknownOperationError は未定義のCRUD操作エラーを生成する。
func NewUnknownOperationError(op string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownOperation,
		Message:  fmt.Sprintf("不明な操作です: %s", op),
		Category: "validation",
		Action:   "opには create、update、delete のいずれかを指定してください。",
	}
}

// NewRecordNotFoundError はレコード未検出エラーを生成する。
func NewRecordNotFoundError(table, id string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("指定されたレコードが見つかりません: %s/%s", table, id),
		Category: "record",
		Action:   "一覧を再読み込みしてIDを確認してください。",
	}
}

// NewInvalidStatusError は予約ステータスの不正値エラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには New、Contacted、Booked、Cancelled のいずれかを指定してください。",
	}
}

// NewMethodNotAllowedError はHTTPメソッド不一致エラーを生成する。
func NewMethodNotAllowedError(method string) *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  fmt.Sprintf("このactionでは %s メソッドを使用できません。", method),
		Category: "validation",
		Action:   "APIドキュメントに従ったメソッドで送信してください。",
	}
}

// NewSMTPNotConfiguredError はSMTP未設定エラーを生成する。
func NewSMTPNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeSMTPNotConfigured,
		Message:  "SMTPサーバーが設定されていません。",
		Category: "mail",
		Action:   "サイト設定でSMTPサーバー、ポート、ユーザー、パスワードを入力してください。",
	}
}

// NewMailFailedError はテストメール送信失敗エラーを生成する。
// logにはSMTPのやり取りの記録を含める。
func NewMailFailedError(log string) *APIError {
	return &APIError{
		Code:     ErrCodeMailFailed,
		Message:  fmt.Sprintf("メール送信に失敗しました: %s", log),
		Category: "mail",
		Action:   "SMTP設定とサーバーの応答を確認してください。",
	}
}

// NewInvalidFileError はアップロードファイルの検証エラーを生成する。
func NewInvalidFileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFile,
		Message:  fmt.Sprintf("ファイルを受け付けられません: %s", reason),
		Category: "validation",
		Action:   "画像またはPDFファイル（10MB以下）を選択してください。",
	}
}

// NewUploadFailedError はストレージへの保存失敗エラーを生成する。
func NewUploadFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  "ファイルの保存に失敗しました。",
		Category: "system",
		Action:   "ストレージ設定を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "feed",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewParseFailedError はフィードのパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "フィードの解析に失敗しました。",
		Category: "feed",
		Action:   "有効なRSS/Atomフィードかどうか確認してください。",
	}
}

// NewSetupClosedError は初期セットアップが無効化されている場合のエラーを生成する。
func NewSetupClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeSetupClosed,
		Message:  "管理者の初期作成は無効化されています。",
		Category: "auth",
		Action:   "ALLOW_BOOTSTRAP_ADMIN=true を設定するか、setupコマンドで管理者を作成してください。",
	}
}

// NewInternalError は原因をクライアントに伝えない内部エラーを生成する。
// 詳細はログにだけ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
