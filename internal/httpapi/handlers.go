package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alemoreirac/maria-aux-back/internal/credits"
	"github.com/alemoreirac/maria-aux-back/internal/gateway"
	"github.com/alemoreirac/maria-aux-back/internal/history"
	"github.com/alemoreirac/maria-aux-back/internal/prompts"
	"github.com/alemoreirac/maria-aux-back/internal/storage"
)

func (s *Server) process(c *gin.Context) {
	uid := c.GetString(ctxUserID)

	var req gateway.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "invalid request body: "+err.Error())
		return
	}
	if req.PromptID <= 0 {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "prompt_id is required")
		return
	}

	if !s.allowRate(c, uid) {
		return
	}

	resp, err := s.router.RouteAI(c.Request.Context(), req, uid)
	if err != nil {
		failKind(c, err)
		return
	}
	success(c, http.StatusOK, resp)
}

// allowRate fails open when the limiter itself is unavailable.
func (s *Server) allowRate(c *gin.Context, uid string) bool {
	if s.limiter == nil {
		return true
	}
	ok, _, resetAt, err := s.limiter.Allow(c.Request.Context(), uid, s.now())
	if err != nil {
		s.log.Error().Err(err).Str("user_id", uid).Msg("rate limiter failed")
		return true
	}
	if ok {
		return true
	}
	s.metrics.RateLimited.Inc()
	c.Header("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
	fail(c, http.StatusTooManyRequests, gateway.KindRateLimited.String(), "rate limit exceeded, try again after "+resetAt.UTC().Format("15:04 UTC"))
	return false
}

func (s *Server) menu(c *gin.Context) {
	list, err := s.store.ListTemplates(c.Request.Context())
	if err != nil {
		s.internal(c, err, "list prompts failed")
		return
	}
	success(c, http.StatusOK, list)
}

func (s *Server) getPrompt(c *gin.Context) {
	tpl, ok := s.loadTemplate(c)
	if !ok {
		return
	}
	success(c, http.StatusOK, tpl)
}

func (s *Server) listPromptParameters(c *gin.Context) {
	tpl, ok := s.loadTemplate(c)
	if !ok {
		return
	}
	params := tpl.Parameters
	if params == nil {
		params = []prompts.Parameter{}
	}
	success(c, http.StatusOK, params)
}

func (s *Server) loadTemplate(c *gin.Context) (prompts.Template, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return prompts.Template{}, false
	}
	tpl, err := s.templates.GetTemplate(c.Request.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, gateway.KindPromptNotFound.String(), "prompt not found")
		return prompts.Template{}, false
	case err != nil:
		s.internal(c, err, "get prompt failed")
		return prompts.Template{}, false
	}
	return tpl, true
}

type dashboardResponse struct {
	UserID  string          `json:"user_id"`
	Credits int64           `json:"credits"`
	History []history.Entry `json:"history"`
}

func (s *Server) dashboard(c *gin.Context) {
	uid := c.GetString(ctxUserID)
	entries, err := s.history.Recent(c.Request.Context(), uid, history.DefaultRecentLimit)
	if err != nil {
		s.internal(c, err, "history lookup failed")
		return
	}
	success(c, http.StatusOK, dashboardResponse{
		UserID:  uid,
		Credits: s.accounts.Balance(c.Request.Context(), uid),
		History: entries,
	})
}

type favouriteDTO struct {
	ID          string    `json:"id"`
	PromptID    int64     `json:"prompt_id"`
	PromptTitle string    `json:"prompt_title"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) listFavourites(c *gin.Context) {
	favs, err := s.store.ListFavourites(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		s.internal(c, err, "list favourites failed")
		return
	}
	out := make([]favouriteDTO, 0, len(favs))
	for _, f := range favs {
		out = append(out, favouriteDTO{ID: f.ID, PromptID: f.PromptID, PromptTitle: f.PromptTitle, CreatedAt: f.CreatedAt})
	}
	success(c, http.StatusOK, out)
}

func (s *Server) addFavourite(c *gin.Context) {
	var body struct {
		PromptID int64 `json:"prompt_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "prompt_id is required")
		return
	}
	id, err := s.store.AddFavourite(c.Request.Context(), c.GetString(ctxUserID), body.PromptID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, gateway.KindPromptNotFound.String(), "prompt not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		fail(c, http.StatusConflict, "already_exists", "prompt is already a favourite")
	case err != nil:
		s.internal(c, err, "add favourite failed")
	default:
		success(c, http.StatusCreated, gin.H{"id": id, "prompt_id": body.PromptID})
	}
}

func (s *Server) removeFavourite(c *gin.Context) {
	promptID, ok := pathID(c, "prompt_id")
	if !ok {
		return
	}
	err := s.store.RemoveFavourite(c.Request.Context(), c.GetString(ctxUserID), promptID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", "favourite not found")
	case err != nil:
		s.internal(c, err, "remove favourite failed")
	default:
		success(c, http.StatusOK, nil)
	}
}

type reportDTO struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	ReportText *string   `json:"report_text"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Server) listReports(c *gin.Context) {
	reports, err := s.store.ListReports(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		s.internal(c, err, "list reports failed")
		return
	}
	out := make([]reportDTO, 0, len(reports))
	for _, r := range reports {
		out = append(out, reportDTO{ID: r.ID, RequestID: r.RequestID, ReportText: r.ReportText, CreatedAt: r.CreatedAt})
	}
	success(c, http.StatusOK, out)
}

func (s *Server) createReport(c *gin.Context) {
	var body struct {
		RequestID  string  `json:"request_id" binding:"required"`
		ReportText *string `json:"report_text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "request_id is required")
		return
	}
	r, err := s.store.CreateReport(c.Request.Context(), storage.Report{
		UserID:     c.GetString(ctxUserID),
		RequestID:  strings.TrimSpace(body.RequestID),
		ReportText: body.ReportText,
	})
	if err != nil {
		s.internal(c, err, "create report failed")
		return
	}
	success(c, http.StatusCreated, reportDTO{ID: r.ID, RequestID: r.RequestID, ReportText: r.ReportText, CreatedAt: r.CreatedAt})
}

func (s *Server) createPrompt(c *gin.Context) {
	var t prompts.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "invalid prompt: "+err.Error())
		return
	}
	if msg := validateTemplate(t); msg != "" {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), msg)
		return
	}
	id, err := s.store.CreatePrompt(c.Request.Context(), t)
	if err != nil {
		s.internal(c, err, "create prompt failed")
		return
	}
	if t.Kind == prompts.KindFile && len(t.Parameters) == 0 {
		s.log.Warn().Int64("prompt_id", id).Msg("file prompt created without a file parameter, requests fail until one is added")
	}
	success(c, http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updatePrompt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var t prompts.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "invalid prompt: "+err.Error())
		return
	}
	t.ID = id
	t.Parameters = nil
	if msg := validateTemplate(t); msg != "" {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), msg)
		return
	}
	err := s.store.UpdatePrompt(c.Request.Context(), t)
	s.afterMutation(c, id, err, "update prompt failed")
}

func (s *Server) deletePrompt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	err := s.store.DeletePrompt(c.Request.Context(), id)
	s.afterMutation(c, id, err, "delete prompt failed")
}

func (s *Server) addParameter(c *gin.Context) {
	promptID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var p prompts.Parameter
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "invalid parameter: "+err.Error())
		return
	}
	p.PromptID = promptID
	if msg := validateParameter(p); msg != "" {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), msg)
		return
	}
	id, err := s.store.AddParameter(c.Request.Context(), p)
	if err == nil {
		s.invalidate(c, promptID)
		success(c, http.StatusCreated, gin.H{"id": id})
		return
	}
	s.afterMutation(c, promptID, err, "add parameter failed")
}

func (s *Server) getParameter(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := s.store.GetParameter(c.Request.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", "parameter not found")
	case err != nil:
		s.internal(c, err, "get parameter failed")
	default:
		success(c, http.StatusOK, p)
	}
}

func (s *Server) updateParameter(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var p prompts.Parameter
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "invalid parameter: "+err.Error())
		return
	}
	p.ID = id
	if msg := validateParameter(p); msg != "" {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), msg)
		return
	}
	promptID, err := s.store.UpdateParameter(c.Request.Context(), p)
	s.afterMutation(c, promptID, err, "update parameter failed")
}

func (s *Server) deleteParameter(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	promptID, err := s.store.DeleteParameter(c.Request.Context(), id)
	s.afterMutation(c, promptID, err, "delete parameter failed")
}

func (s *Server) grantCredits(c *gin.Context) {
	var body struct {
		UserID string `json:"user_id" binding:"required"`
		Amount int64  `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "user_id and amount are required")
		return
	}
	balance, err := s.accounts.Add(c.Request.Context(), body.UserID, body.Amount)
	switch {
	case errors.Is(err, credits.ErrNegativeAmount):
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "amount must be positive")
	case err != nil:
		s.internal(c, err, "grant credits failed")
	default:
		s.log.Info().Str("admin_id", c.GetString(ctxUserID)).Str("user_id", body.UserID).Int64("amount", body.Amount).Msg("credits granted")
		success(c, http.StatusOK, gin.H{"user_id": body.UserID, "credits": balance})
	}
}

// afterMutation answers a catalogue write and drops the cached template.
func (s *Server) afterMutation(c *gin.Context, promptID int64, err error, msg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", "not found")
	case err != nil:
		s.internal(c, err, msg)
	default:
		s.invalidate(c, promptID)
		success(c, http.StatusOK, nil)
	}
}

func (s *Server) invalidate(c *gin.Context, promptID int64) {
	if s.cache != nil && promptID > 0 {
		s.cache.Invalidate(c.Request.Context(), promptID)
	}
}

func (s *Server) internal(c *gin.Context, err error, msg string) {
	s.log.Error().Err(err).Str("user_id", c.GetString(ctxUserID)).Msg(msg)
	fail(c, http.StatusInternalServerError, gateway.KindPersistenceFailure.String(), "internal error")
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, gateway.KindBadRequest.String(), "invalid "+name)
		return 0, false
	}
	return id, true
}

func validateTemplate(t prompts.Template) string {
	switch {
	case strings.TrimSpace(t.Title) == "":
		return "title is required"
	case strings.TrimSpace(t.Content) == "":
		return "content is required"
	case !t.Kind.Valid():
		return "kind must be 1 (text), 2 (file) or 3 (web search)"
	case t.PreferredProvider != 0 && !t.PreferredProvider.Valid():
		return "preferred_provider is not a known provider"
	}
	for _, p := range t.Parameters {
		if msg := validateParameter(p); msg != "" {
			return msg
		}
	}
	if t.Kind == prompts.KindFile && len(t.Parameters) > 0 && !hasFileParameter(t.Parameters) {
		return "file prompts need a file or image parameter"
	}
	return ""
}

func hasFileParameter(params []prompts.Parameter) bool {
	for _, p := range params {
		if p.Kind.IsBinary() {
			return true
		}
	}
	return false
}

func validateParameter(p prompts.Parameter) string {
	if strings.TrimSpace(p.Title) == "" {
		return "parameter title is required"
	}
	if !p.Kind.Valid() {
		return "parameter kind " + strconv.Itoa(int(p.Kind)) + " is not supported"
	}
	return ""
}
