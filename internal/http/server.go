// Package http is the transport surface for the hall-pass service.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjms-tools/hallpass/internal/auth"
	"github.com/tjms-tools/hallpass/internal/config"
	"github.com/tjms-tools/hallpass/internal/hallpass"
	"github.com/tjms-tools/hallpass/internal/model"
	"github.com/tjms-tools/hallpass/internal/rooms"
)

var (
	passTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hallpass_pass_transitions_total",
		Help: "Pass lifecycle transitions by kind.",
	}, []string{"transition"})
	scanOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hallpass_scan_outcomes_total",
		Help: "Kiosk scan results by outcome code.",
	}, []string{"outcome"})
)

type Server struct {
	cfg      config.Config
	svc      *hallpass.Service
	registry *rooms.Registry
	provider *config.Provider
}

func NewServer(cfg config.Config, svc *hallpass.Service, registry *rooms.Registry, provider *config.Provider) *Server {
	return &Server{cfg: cfg, svc: svc, registry: registry, provider: provider}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/passes", s.handleRequestPass)
		r.Post("/passes/override", s.handleCreateOverride)
		r.Post("/passes/{passId}/approve", s.handleApprovePass)
		r.Post("/passes/{passId}/reject", s.handleRejectPass)
		r.Post("/passes/{passId}/return", s.handleReturnPass)
		r.Post("/passes/{passId}/note", s.handlePassNote)
		r.Post("/students/{studentId}/note", s.handleStudentNote)
		r.Post("/scan", s.handleScan)

		r.Get("/rooms", s.handleListRooms)
		r.Get("/rooms/{room}/slots", s.handleRoomSlots)
		r.Get("/rooms/{room}/queue", s.handleRoomQueue)
		r.Put("/rooms/{room}/active", s.handleSetRoomActive)
		r.Get("/slots", s.handleSlotView)

		r.Get("/passes/open", s.handleOpenBoard)
		r.Get("/passes/pending/count", s.handlePendingCount)
		r.Get("/passes/returns/recent", s.handleRecentReturns)
		r.Get("/reports/weekly", s.handleWeeklyReport)
		r.Get("/periods/current", s.handleCurrentPeriods)
		r.Post("/config/reload", s.handleReloadConfig)
	})

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token", "")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", "")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func requireRole(w http.ResponseWriter, r *http.Request, roles ...string) *auth.Claims {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token", "")
		return nil
	}
	for _, role := range roles {
		if claims.UserType == role {
			return claims
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "")
	return nil
}

// Handlers

type passResponse struct {
	ID            string `json:"id"`
	StudentID     string `json:"student_id"`
	Date          string `json:"date"`
	Period        string `json:"period"`
	OriginRoom    string `json:"origin_room"`
	RoomIn        string `json:"room_in,omitempty"`
	CheckoutAt    int64  `json:"checkout_at"`
	CheckinAt     int64  `json:"checkin_at,omitempty"`
	IsOverride    bool   `json:"is_override"`
	Note          string `json:"note,omitempty"`
	Status        string `json:"status"`
	TotalPassTime int    `json:"total_pass_time,omitempty"`
}

func mapPass(p model.Pass) passResponse {
	resp := passResponse{
		ID:            p.ID.String(),
		StudentID:     p.StudentID,
		Date:          p.Date.Format("2006-01-02"),
		Period:        p.Period,
		OriginRoom:    p.OriginRoom,
		CheckoutAt:    p.CheckoutAt.Unix(),
		IsOverride:    p.IsOverride,
		Note:          p.Note,
		Status:        string(p.Status),
		TotalPassTime: p.TotalPassTime,
	}
	if p.RoomIn != nil {
		resp.RoomIn = *p.RoomIn
	}
	if p.CheckinAt != nil {
		resp.CheckinAt = p.CheckinAt.Unix()
	}
	return resp
}

type passDetailResponse struct {
	passResponse
	Durations hallpass.Durations `json:"durations"`
}

func mapDetail(d hallpass.PassDetail) passDetailResponse {
	return passDetailResponse{passResponse: mapPass(d.Pass), Durations: d.Durations}
}

func mapDetails(details []hallpass.PassDetail) []passDetailResponse {
	out := make([]passDetailResponse, 0, len(details))
	for _, d := range details {
		out = append(out, mapDetail(d))
	}
	return out
}

func (s *Server) handleRequestPass(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "student")
	if claims == nil {
		return
	}
	pass, err := s.svc.RequestPass(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	passTransitions.WithLabelValues("request").Inc()
	writeJSON(w, http.StatusCreated, mapPass(*pass))
}

type overrideRequest struct {
	StudentID string `json:"student_id"`
	Room      string `json:"room"`
	Period    string `json:"period"`
}

func (s *Server) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "admin", "teacher")
	if claims == nil {
		return
	}
	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	if req.StudentID == "" {
		writeError(w, http.StatusBadRequest, "missing_student", "")
		return
	}
	pass, err := s.svc.CreateOverridePass(r.Context(), claims.UserID, req.StudentID, req.Room, req.Period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	passTransitions.WithLabelValues("override").Inc()
	writeJSON(w, http.StatusCreated, mapPass(*pass))
}

func (s *Server) handleApprovePass(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "admin", "teacher")
	if claims == nil {
		return
	}
	passID, ok := parsePassID(w, r)
	if !ok {
		return
	}
	pass, err := s.svc.ApprovePass(r.Context(), claims.UserID, passID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	passTransitions.WithLabelValues("approve").Inc()
	writeJSON(w, http.StatusOK, mapPass(*pass))
}

func (s *Server) handleRejectPass(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "admin", "teacher")
	if claims == nil {
		return
	}
	passID, ok := parsePassID(w, r)
	if !ok {
		return
	}
	if err := s.svc.RejectPass(r.Context(), claims.UserID, passID); err != nil {
		writeServiceError(w, err)
		return
	}
	passTransitions.WithLabelValues("reject").Inc()
	w.WriteHeader(http.StatusNoContent)
}

type returnRequest struct {
	Station string `json:"station"`
}

func (s *Server) handleReturnPass(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "admin", "teacher", "kiosk")
	if claims == nil {
		return
	}
	passID, ok := parsePassID(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "")
			return
		}
	}
	pass, err := s.svc.ReturnPass(r.Context(), claims.UserID, passID, req.Station)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	passTransitions.WithLabelValues("return").Inc()
	writeJSON(w, http.StatusOK, mapPass(*pass))
}

type noteRequest struct {
	Note string `json:"note"`
}

func (s *Server) handlePassNote(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "admin", "teacher")
	if claims == nil {
		return
	}
	passID, ok := parsePassID(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	pass, err := s.svc.AddNoteByPass(r.Context(), claims.UserID, passID, strings.TrimSpace(req.Note))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPass(*pass))
}

func (s *Server) handleStudentNote(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "admin", "teacher")
	if claims == nil {
		return
	}
	studentID := chi.URLParam(r, "studentId")
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	pass, err := s.svc.AddNote(r.Context(), claims.UserID, studentID, strings.TrimSpace(req.Note))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPass(*pass))
}

type scanRequest struct {
	StudentID string `json:"student_id"`
	Station   string `json:"station"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "kiosk", "admin")
	if claims == nil {
		return
	}
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Station = strings.TrimSpace(req.Station)
	if req.StudentID == "" || req.Station == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "")
		return
	}
	message, err := s.svc.Scan(r.Context(), req.StudentID, req.Station)
	if err != nil {
		if code := hallpass.CodeOf(err); code != "" {
			scanOutcomes.WithLabelValues(code).Inc()
		} else {
			scanOutcomes.WithLabelValues("server_error").Inc()
		}
		writeServiceError(w, err)
		return
	}
	scanOutcomes.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	if claims := claimsFromContext(r.Context()); claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token", "")
		return
	}
	active, err := s.registry.ActiveRooms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	names := make([]string, 0, len(active))
	for _, room := range active {
		names = append(names, room.Room)
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleRoomSlots(w http.ResponseWriter, r *http.Request) {
	if claims := claimsFromContext(r.Context()); claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token", "")
		return
	}
	room := chi.URLParam(r, "room")
	slots, err := s.svc.Slots(r.Context(), room)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) handleRoomQueue(w http.ResponseWriter, r *http.Request) {
	if claims := claimsFromContext(r.Context()); claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token", "")
		return
	}
	room := chi.URLParam(r, "room")
	queue, err := s.svc.RoomQueue(r.Context(), room)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetRoomActive(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "admin")
	if claims == nil {
		return
	}
	room := chi.URLParam(r, "room")
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	var err error
	if req.Active {
		err = s.registry.Activate(r.Context(), claims.UserID, room)
	} else {
		err = s.registry.Deactivate(r.Context(), claims.UserID, room)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSlotView(w http.ResponseWriter, r *http.Request) {
	claims := requireRole(w, r, "student")
	if claims == nil {
		return
	}
	views, err := s.svc.SlotView(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleOpenBoard(w http.ResponseWriter, r *http.Request) {
	if claims := requireRole(w, r, "admin", "teacher"); claims == nil {
		return
	}
	board, err := s.svc.OpenBoard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending_start":  mapDetails(board.PendingStart),
		"pending_return": mapDetails(board.PendingReturn),
		"active":         mapDetails(board.Active),
	})
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	if claims := requireRole(w, r, "admin", "teacher"); claims == nil {
		return
	}
	start, ret, err := s.svc.PendingCounts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"pending_start":  start,
		"pending_return": ret,
	})
}

func (s *Server) handleRecentReturns(w http.ResponseWriter, r *http.Request) {
	if claims := requireRole(w, r, "admin", "teacher"); claims == nil {
		return
	}
	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	details, err := s.svc.RecentReturns(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapDetails(details))
}

func (s *Server) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	if claims := requireRole(w, r, "admin"); claims == nil {
		return
	}
	report, err := s.svc.WeeklySummary(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCurrentPeriods(w http.ResponseWriter, r *http.Request) {
	if claims := claimsFromContext(r.Context()); claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"periods": s.svc.CurrentPeriods(),
		"now":     time.Now().Format("15:04"),
	})
}

func (s *Server) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	if claims := requireRole(w, r, "admin"); claims == nil {
		return
	}
	if err := s.provider.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, "invalid_config", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Utilities

func parsePassID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "passId")
	parsed, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_pass_id", "")
		return uuid.UUID{}, false
	}
	return parsed, true
}

// writeServiceError maps coded service errors to HTTP statuses; anything
// uncoded is a storage-layer failure and surfaces as a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	code := hallpass.CodeOf(err)
	if code == "" {
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	writeError(w, statusForCode(code), code, err.Error())
}

func statusForCode(code string) int {
	switch code {
	case hallpass.ErrStudentNotFound, hallpass.ErrPassNotFound, hallpass.ErrRoomNotFound:
		return http.StatusNotFound
	case hallpass.ErrInvalidRequest:
		return http.StatusBadRequest
	case hallpass.ErrRoomInactive:
		return http.StatusForbidden
	case hallpass.ErrPassConflict, hallpass.ErrCapacityExceeded, hallpass.ErrInvalidState,
		hallpass.ErrPassPendingApproval, hallpass.ErrNoActivePass, hallpass.ErrDuplicateSwipe:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body := map[string]string{"error": code}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}
