package handler

import (
	"net/http"
	"slices"
	"strings"

	"github.com/hitoshi/skyline/internal/middleware"
	"github.com/hitoshi/skyline/internal/model"
)

// action名の一覧
const (
	ActionLogin          = "login"
	ActionGetAllData     = "get_all_data"
	ActionCreateBooking  = "create_booking"
	ActionAddSubscriber  = "add_subscriber"
	ActionSavePlan       = "save_plan"
	ActionCheckAIUsage   = "check_ai_usage"
	ActionCRUD           = "crud"
	ActionGetAdminData   = "get_admin_data"
	ActionUploadFile     = "upload_file"
	ActionUpdateSettings = "update_settings"
	ActionChangePassword = "change_password"
	ActionSendTestEmail  = "send_test_email"
	ActionImportFeed     = "import_feed"
)

// statusResponse はactionが指定されていない場合の応答。
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type route struct {
	methods []string
	handler http.Handler
}

// ActionDispatcher はクエリパラメータactionに応じてハンドラーを呼び分ける。
// 認証やレート制限はaction単位で登録時に組み込む。
type ActionDispatcher struct {
	routes map[string]route
}

// ServeHTTP はactionを解決して対応するハンドラーを呼び出す。
func (d *ActionDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("action"))
	if name == "" {
		writeJSON(w, http.StatusOK, statusResponse{Status: "online", Message: "Skyline API Ready"})
		return
	}

	rt, ok := d.routes[name]
	if !ok {
		handleServiceError(w, r, model.NewUnknownActionError(name))
		return
	}
	if !slices.Contains(rt.methods, r.Method) {
		w.Header().Set("Allow", strings.Join(rt.methods, ", "))
		handleServiceError(w, r, model.NewMethodNotAllowedError(r.Method))
		return
	}

	rt.handler.ServeHTTP(w, r)
}

// Actions は登録済みのaction名を返す。
func (d *ActionDispatcher) Actions() []string {
	names := make([]string, 0, len(d.routes))
	for name := range d.routes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (d *ActionDispatcher) handle(name string, h http.HandlerFunc, methods []string, mws ...func(http.Handler) http.Handler) {
	var next http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			next = mws[i](next)
		}
	}
	d.routes[name] = route{methods: methods, handler: next}
}

var (
	getOnly   = []string{http.MethodGet}
	postOnly  = []string{http.MethodPost}
	getOrPost = []string{http.MethodGet, http.MethodPost}
)

// newActionDispatcher は全actionを登録したディスパッチャーを返す。
//
// 認証が必要なaction: crud, get_admin_data, upload_file, update_settings,
// change_password, send_test_email, import_feed
func newActionDispatcher(deps *RouterDeps) *ActionDispatcher {
	h := &apiHandler{
		auth:       deps.AuthService,
		catalog:    deps.CatalogService,
		records:    deps.RecordService,
		bookings:   deps.BookingService,
		newsletter: deps.NewsletterService,
		planner:    deps.PlannerService,
		settings:   deps.SettingsService,
		uploads:    deps.UploadService,
		mail:       deps.MailProber,
		feeds:      deps.FeedImportService,
	}

	var publicLimit, loginLimit func(http.Handler) http.Handler
	if deps.RateLimiter != nil {
		publicLimit = deps.RateLimiter.PublicMiddleware()
		loginLimit = deps.RateLimiter.LoginMiddleware()
	}
	requireAuth := middleware.NewAuthMiddleware(deps.Authenticator)

	d := &ActionDispatcher{routes: make(map[string]route)}

	// 認証不要
	d.handle(ActionLogin, h.login, postOnly, loginLimit)
	d.handle(ActionGetAllData, h.getAllData, getOnly)
	d.handle(ActionCreateBooking, h.createBooking, postOnly, publicLimit)
	d.handle(ActionAddSubscriber, h.addSubscriber, postOnly, publicLimit)
	d.handle(ActionSavePlan, h.savePlan, postOnly, publicLimit)
	d.handle(ActionCheckAIUsage, h.checkAIUsage, getOrPost)

	// 認証が必要
	d.handle(ActionCRUD, h.crud, postOnly, requireAuth)
	d.handle(ActionGetAdminData, h.getAdminData, getOnly, requireAuth)
	d.handle(ActionUploadFile, h.uploadFile, postOnly, requireAuth)
	d.handle(ActionUpdateSettings, h.updateSettings, postOnly, requireAuth)
	d.handle(ActionChangePassword, h.changePassword, postOnly, requireAuth)
	d.handle(ActionSendTestEmail, h.sendTestEmail, postOnly, requireAuth)
	d.handle(ActionImportFeed, h.importFeed, postOnly, requireAuth)

	return d
}

// apiHandler は各actionの実装を持つ。
type apiHandler struct {
	auth       AuthServiceInterface
	catalog    CatalogServiceInterface
	records    RecordServiceInterface
	bookings   BookingServiceInterface
	newsletter NewsletterServiceInterface
	planner    PlannerServiceInterface
	settings   SettingsServiceInterface
	uploads    UploadServiceInterface
	mail       MailProberInterface
	feeds      FeedImportServiceInterface
}
