package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/skyline/internal/model"
)

// ErrorResponseBody はaction APIが失敗時に返すJSON。
// 管理画面はsuccessとerrorだけを見るので、codeとmessageは同じ内容を別名でも返す。
type ErrorResponseBody struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func newErrorResponseBody(apiErr *model.APIError) ErrorResponseBody {
	return ErrorResponseBody{
		Error:    apiErr.Message,
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// WriteErrorResponse はapiErrをstatusCodeで書き込む。
// 認証ゲート、レート制限、各actionのハンドラーがすべてこの形で失敗を返す。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(newErrorResponseBody(apiErr))
}

// WriteInternalServerError は500 INTERNAL_ERRORを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
