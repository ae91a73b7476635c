package routes

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"github.com/cubesugarcheese/wapqq-bridge/internal/web"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/archive"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/config"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/mirai"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/models"
)

const (
	sessionName = "wapqq"
)

// Platform is the slice of the bot connection the web UI needs: listing
// conversations and sending messages on behalf of the operator.
type Platform interface {
	BotID() int64
	GetGroupList(ctx context.Context) ([]mirai.Group, error)
	GetFriendList(ctx context.Context) ([]mirai.Friend, error)
	SendGroupMessage(ctx context.Context, groupID int64, chain mirai.MessageChain) (int64, error)
	SendFriendMessage(ctx context.Context, friendID int64, chain mirai.MessageChain) (int64, error)
}

// WebRouter serves the conversation browser and the send endpoints.
type WebRouter struct {
	config       config.Configuration
	archive      *archive.Manager
	platform     Platform
	sessionStore *sessions.CookieStore
}

// Initialize wires the router and returns the HTTP server, ready for
// ListenAndServe; the caller owns its lifecycle so shutdown can drain it.
func (wr *WebRouter) Initialize(cfg config.Configuration, mgr *archive.Manager, platform Platform) *http.Server {
	wr.config = cfg
	wr.archive = mgr
	wr.platform = platform
	wr.sessionStore = sessions.NewCookieStore([]byte(cfg.Web.SessionSecret))

	myRouter := mux.NewRouter().StrictSlash(true)

	myRouter.HandleFunc("/qq", wr.mainPage).Methods("GET")
	myRouter.HandleFunc("/qq/send_error", wr.sendErrorPage).Methods("GET")
	myRouter.HandleFunc("/qq/group/{id:[0-9]+}", wr.groupPage).Methods("GET")
	myRouter.HandleFunc("/qq/friend/{id:[0-9]+}", wr.friendPage).Methods("GET")
	myRouter.HandleFunc("/qq/send_group_message/{id:[0-9]+}", wr.sendGroupMessage).Methods("POST")
	myRouter.HandleFunc("/qq/send_friend_message/{id:[0-9]+}", wr.sendFriendMessage).Methods("POST")

	staticFS, _ := fs.Sub(web.ContentFS, "static")
	myRouter.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	myRouter.Use(handlers.ProxyHeaders)
	myRouter.Use(RequestLogger)
	h := handlers.RecoveryHandler()

	return &http.Server{Addr: cfg.Web.ListenAddr, Handler: h(myRouter)}
}

// RequestLogger logs every request before passing it down the chain.
func RequestLogger(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		slog.Info("endpoint hit", "method", r.Method, "path", r.URL.Path, "remote_host", r.RemoteAddr)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

type mainPageData struct {
	Title   string
	Account int64
	Groups  []mirai.Group
	Friends []mirai.Friend
}

// messageRow is one rendered history line: the archived view plus the
// human-readable text decoded from the stored chain.
type messageRow struct {
	models.MessageView
	Display string
}

type messagePageData struct {
	Title     string
	Status    string
	Account   int64
	Name      string
	Messages  []messageRow
	Page      int
	PageCount int
	HasPrev   bool
	HasNext   bool
	PrevPage  int
	NextPage  int
	PagePath  string
	SendPath  string
}

type sendErrorData struct {
	Title   string
	Flashes []string
}

func (wr *WebRouter) mainPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := wr.platform.GetGroupList(ctx)
	if err != nil {
		slog.Error("group list unavailable", "error", err)
		http.Error(w, "platform unavailable", http.StatusBadGateway)
		return
	}
	friends, err := wr.platform.GetFriendList(ctx)
	if err != nil {
		slog.Error("friend list unavailable", "error", err)
		http.Error(w, "platform unavailable", http.StatusBadGateway)
		return
	}

	wr.render(w, "main_page", mainPageData{
		Title:   "WapQQ",
		Account: wr.platform.BotID(),
		Groups:  groups,
		Friends: friends,
	})
}

func (wr *WebRouter) groupPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := pathID(r)

	groups, err := wr.platform.GetGroupList(ctx)
	if err != nil {
		slog.Error("group list unavailable", "error", err)
		http.Error(w, "platform unavailable", http.StatusBadGateway)
		return
	}
	var current *mirai.Group
	for i := range groups {
		if groups[i].ID == groupID {
			current = &groups[i]
			break
		}
	}
	if current == nil {
		wr.render(w, "message_page", messagePageData{Title: "WapQQ", Status: "error"})
		return
	}

	page := queryPage(r)
	views, err := wr.archive.ListGroupMessages(ctx, groupID, wr.pageSize(), page)
	if err != nil {
		slog.Error("group history unavailable", "group", groupID, "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	pageCount, err := wr.archive.GroupPageCount(groupID, wr.pageSize())
	if err != nil {
		slog.Error("group page count unavailable", "group", groupID, "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	idStr := strconv.FormatInt(groupID, 10)
	wr.render(w, "message_page", messagePageData{
		Title:     current.Name + " - WapQQ",
		Status:    "ok",
		Account:   wr.platform.BotID(),
		Name:      current.Name,
		Messages:  renderRows(views),
		Page:      page,
		PageCount: pageCount,
		HasPrev:   page > 1,
		HasNext:   page < pageCount,
		PrevPage:  page - 1,
		NextPage:  page + 1,
		PagePath:  "/qq/group/" + idStr,
		SendPath:  "/qq/send_group_message/" + idStr,
	})
}

func (wr *WebRouter) friendPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	friendID := pathID(r)

	friends, err := wr.platform.GetFriendList(ctx)
	if err != nil {
		slog.Error("friend list unavailable", "error", err)
		http.Error(w, "platform unavailable", http.StatusBadGateway)
		return
	}
	var current *mirai.Friend
	for i := range friends {
		if friends[i].ID == friendID {
			current = &friends[i]
			break
		}
	}
	if current == nil {
		wr.render(w, "message_page", messagePageData{Title: "WapQQ", Status: "error"})
		return
	}

	page := queryPage(r)
	views, err := wr.archive.ListFriendMessages(ctx, friendID, wr.pageSize(), page)
	if err != nil {
		slog.Error("friend history unavailable", "friend", friendID, "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	pageCount, err := wr.archive.FriendPageCount(friendID, wr.pageSize())
	if err != nil {
		slog.Error("friend page count unavailable", "friend", friendID, "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	idStr := strconv.FormatInt(friendID, 10)
	wr.render(w, "message_page", messagePageData{
		Title:     current.Nickname + " - WapQQ",
		Status:    "ok",
		Account:   wr.platform.BotID(),
		Name:      current.Nickname,
		Messages:  renderRows(views),
		Page:      page,
		PageCount: pageCount,
		HasPrev:   page > 1,
		HasNext:   page < pageCount,
		PrevPage:  page - 1,
		NextPage:  page + 1,
		PagePath:  "/qq/friend/" + idStr,
		SendPath:  "/qq/send_friend_message/" + idStr,
	})
}

func (wr *WebRouter) sendGroupMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := pathID(r)

	text := r.PostFormValue("message")
	if text == "" {
		wr.flashAndRedirect(w, r, "消息内容不能为空")
		return
	}

	chain := mirai.Plain(text)
	if _, err := wr.platform.SendGroupMessage(ctx, groupID, chain); err != nil {
		slog.Error("group send failed", "group", groupID, "error", err)
		wr.flashAndRedirect(w, r, "发送失败："+err.Error())
		return
	}
	if err := wr.archive.RecordBotGroupMessage(groupID, chain.PersistentString()); err != nil {
		slog.Error("recording sent group message failed", "group", groupID, "error", err)
	}
	if err := wr.archive.EnsureBotIdentity(ctx, groupID); err != nil {
		slog.Error("bot identity re-sync failed", "group", groupID, "error", err)
	}

	http.Redirect(w, r, "/qq/group/"+strconv.FormatInt(groupID, 10), http.StatusFound)
}

func (wr *WebRouter) sendFriendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	friendID := pathID(r)

	text := r.PostFormValue("message")
	if text == "" {
		wr.flashAndRedirect(w, r, "消息内容不能为空")
		return
	}

	chain := mirai.Plain(text)
	if _, err := wr.platform.SendFriendMessage(ctx, friendID, chain); err != nil {
		slog.Error("friend send failed", "friend", friendID, "error", err)
		wr.flashAndRedirect(w, r, "发送失败："+err.Error())
		return
	}
	if err := wr.archive.RecordBotFriendMessage(friendID, chain.PersistentString()); err != nil {
		slog.Error("recording sent friend message failed", "friend", friendID, "error", err)
	}
	wr.archive.EnsureBotAccount(ctx)

	http.Redirect(w, r, "/qq/friend/"+strconv.FormatInt(friendID, 10), http.StatusFound)
}

func (wr *WebRouter) sendErrorPage(w http.ResponseWriter, r *http.Request) {
	var flashes []string
	if session, err := wr.sessionStore.Get(r, sessionName); err == nil {
		for _, f := range session.Flashes() {
			if s, ok := f.(string); ok {
				flashes = append(flashes, s)
			}
		}
		_ = session.Save(r, w)
	}
	wr.render(w, "send_error", sendErrorData{Title: "发送失败 - WapQQ", Flashes: flashes})
}

func (wr *WebRouter) flashAndRedirect(w http.ResponseWriter, r *http.Request, message string) {
	if session, err := wr.sessionStore.Get(r, sessionName); err == nil {
		session.AddFlash(message)
		_ = session.Save(r, w)
	}
	http.Redirect(w, r, "/qq/send_error", http.StatusFound)
}

func (wr *WebRouter) render(w http.ResponseWriter, name string, data any) {
	tmpl, err := web.GetHTMLTemplate(name)
	if err != nil {
		slog.Error("template parse failed", "template", name, "error", err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, name+".tmpl.html", data); err != nil {
		slog.Error("template render failed", "template", name, "error", err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
	}
}

func (wr *WebRouter) pageSize() int {
	if wr.config.Web.PageSize > 0 {
		return wr.config.Web.PageSize
	}
	return archive.DefaultPageSize
}

func renderRows(views []models.MessageView) []messageRow {
	rows := make([]messageRow, 0, len(views))
	for _, v := range views {
		rows = append(rows, messageRow{
			MessageView: v,
			Display:     mirai.ParsePersistentString(v.Context).DisplayText(),
		})
	}
	return rows
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func queryPage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
