package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/hitoshi/skyline/internal/booking"
	"github.com/hitoshi/skyline/internal/catalog"
	"github.com/hitoshi/skyline/internal/feedimport"
	"github.com/hitoshi/skyline/internal/middleware"
	"github.com/hitoshi/skyline/internal/model"
	"github.com/hitoshi/skyline/internal/record"
)

// multipartMemory はmultipartの解析時にメモリに保持する上限。超えた分は一時ファイルに書き出される。
const multipartMemory = 8 << 20

// multipartOverhead はファイル本体以外のmultipartヘッダー等に許容するバイト数。
const multipartOverhead = 64 << 10

// crudRequest は汎用レコード操作のリクエストボディ。
type crudRequest struct {
	Table string         `json:"table"`
	Op    string         `json:"op"`
	Data  map[string]any `json:"data"`
	ID    string         `json:"id"`
}

type adminDataResponse struct {
	Success bool `json:"success"`
	*catalog.AdminData
}

type uploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

// testEmailRequest はテストメールの宛先。空の場合は管理者アドレスに送る。
type testEmailRequest struct {
	Email string `json:"email"`
	To    string `json:"to"`
}

type importFeedRequest struct {
	URL string `json:"url"`
}

type importFeedResponse struct {
	Success bool `json:"success"`
	*feedimport.Result
}

// crud はPOST ?action=crud を処理する。
func (h *apiHandler) crud(w http.ResponseWriter, r *http.Request) {
	var req crudRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	// 許可リストにないテーブルは操作内容を見る前に拒否する
	if _, ok := model.LookupSchema(req.Table); !ok {
		handleServiceError(w, r, model.NewUnknownTableError(req.Table))
		return
	}

	if req.Table == model.TableBookings && req.Op != record.OpDelete {
		if status, ok := req.Data["status"]; ok {
			if err := booking.CheckStatus(status); err != nil {
				handleServiceError(w, r, err)
				return
			}
		}
	}

	id, err := h.records.Apply(r.Context(), req.Table, req.Op, req.ID, req.Data)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{Success: true, ID: id})
}

// getAdminData はGET ?action=get_admin_data を処理する。
func (h *apiHandler) getAdminData(w http.ResponseWriter, r *http.Request) {
	data, err := h.catalog.GetAdminData(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminDataResponse{Success: true, AdminData: data})
}

// uploadFile はPOST ?action=upload_file を処理する。ファイルはmultipartのfileフィールドで受け取る。
func (h *apiHandler) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleServiceError(w, r, model.NewInvalidFileError("ファイルサイズが上限を超えています"))
			return
		}
		handleServiceError(w, r, model.NewInvalidFileError("No file"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		handleServiceError(w, r, model.NewInvalidFileError("No file"))
		return
	}
	defer file.Close()

	url, err := h.uploads.Save(r.Context(), header.Filename, file, header.Size)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, URL: url})
}

// updateSettings はPOST ?action=update_settings を処理する。ボディのJSONで設定を丸ごと置き換える。
func (h *apiHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	if err != nil {
		handleServiceError(w, r, model.NewInvalidRequestError())
		return
	}

	if _, err := h.settings.Update(r.Context(), raw); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w)
}

// changePassword はPOST ?action=change_password を処理する。対象はトークンの管理者。
func (h *apiHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	adminID, err := middleware.AdminIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, r, model.NewUnauthorizedError(model.ErrCodeUnauthorized, "Unauthorized"))
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), adminID, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w)
}

// sendTestEmail はPOST ?action=send_test_email を処理する。
func (h *apiHandler) sendTestEmail(w http.ResponseWriter, r *http.Request) {
	var req testEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	to := strings.TrimSpace(req.Email)
	if to == "" {
		to = strings.TrimSpace(req.To)
	}

	if err := h.mail.SendTest(r.Context(), to); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w)
}

// importFeed はPOST ?action=import_feed を処理する。取り込んだ記事は下書きとして保存される。
func (h *apiHandler) importFeed(w http.ResponseWriter, r *http.Request) {
	var req importFeedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.feeds.Import(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importFeedResponse{Success: true, Result: result})
}
