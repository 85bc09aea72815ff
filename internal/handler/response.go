package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/skyline/internal/middleware"
	"github.com/hitoshi/skyline/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限。
const maxJSONBodySize = 1 << 20

// successResponse は追加の項目を持たない成功レスポンス。
type successResponse struct {
	Success bool `json:"success"`
}

// idResponse はレコードIDを返す成功レスポンス。
type idResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// decodeJSON はリクエストボディをJSONとしてvに読み込む。
// 空のボディはエラーにせず、vをゼロ値のまま残す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return model.NewInvalidRequestError()
	}
	return nil
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("action", r.URL.Query().Get("action")),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeMissingToken, model.ErrCodeInvalidTokenFormat,
		model.ErrCodeInvalidTokenSignature, model.ErrCodeTokenExpired, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeValidation, model.ErrCodeUnknownTable,
		model.ErrCodeUnknownAction, model.ErrCodeUnknownOperation, model.ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case model.ErrCodeSMTPNotConfigured, model.ErrCodeInvalidFile, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeRecordNotFound:
		return http.StatusNotFound
	case model.ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case model.ErrCodeSetupClosed, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeMailFailed, model.ErrCodeFetchFailed:
		return http.StatusBadGateway
	case model.ErrCodeParseFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
