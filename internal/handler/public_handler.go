package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/skyline/internal/catalog"
)

// loginRequest はログインのリクエストボディ。usernameが無ければemailをログインIDとして使う。
type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// allDataResponse は公開データをsuccessと同じ階層に展開して返す。
type allDataResponse struct {
	Success bool `json:"success"`
	*catalog.PublicData
}

type emailRequest struct {
	Email string `json:"email"`
}

type savePlanRequest struct {
	Email    string          `json:"email"`
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
}

type usageResponse struct {
	Success bool `json:"success"`
	Allowed bool `json:"allowed"`
}

// login はPOST ?action=login を処理する。
func (h *apiHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	id := req.Username
	if id == "" {
		id = req.Email
	}

	tok, err := h.auth.Login(r.Context(), id, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: tok})
}

// getAllData はGET ?action=get_all_data を処理する。公開サイトの初期表示に使う。
func (h *apiHandler) getAllData(w http.ResponseWriter, r *http.Request) {
	data, err := h.catalog.GetAllData(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allDataResponse{Success: true, PublicData: data})
}

// createBooking はPOST ?action=create_booking を処理する。
func (h *apiHandler) createBooking(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeJSON(w, r, &payload); err != nil {
		handleServiceError(w, r, err)
		return
	}

	id, err := h.bookings.CreateBooking(r.Context(), payload)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{Success: true, ID: id})
}

// addSubscriber はPOST ?action=add_subscriber を処理する。登録済みのアドレスも成功として扱う。
func (h *apiHandler) addSubscriber(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.newsletter.Subscribe(r.Context(), req.Email); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeOK(w)
}

// savePlan はPOST ?action=save_plan を処理する。
func (h *apiHandler) savePlan(w http.ResponseWriter, r *http.Request) {
	var req savePlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	id, err := h.planner.SavePlan(r.Context(), req.Email, req.Request, req.Response)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{Success: true, ID: id})
}

// checkAIUsage は ?action=check_ai_usage を処理する。
// メールアドレスはクエリのemailを優先し、無ければPOSTボディから読む。
func (h *apiHandler) checkAIUsage(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" && r.Method == http.MethodPost {
		var req emailRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}
		email = req.Email
	}

	allowed, err := h.planner.CheckUsage(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{Success: true, Allowed: allowed})
}
