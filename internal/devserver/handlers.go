package devserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const maxImageBody = 6 << 20

// Handler owns the devserver routes.
type Handler struct {
	Router chi.Router

	db     *gorm.DB
	log    *zap.SugaredLogger
	secret string
}

// NewHandler builds the router with logging and auth middleware.
func NewHandler(db *gorm.DB, secret string, log *zap.SugaredLogger) *Handler {
	h := &Handler{db: db, log: log, secret: secret}

	r := chi.NewRouter()
	r.Use(WithLogging(log))
	r.Use(WithAuth(secret))

	r.Get("/api/ping", h.Ping)
	r.Head("/api/ping", h.Ping)
	r.Post("/api/user/login", h.Login)
	r.Get("/api/catalogs/all", h.Catalogs)
	r.Post("/api/stair_report/", h.SubmitReport)
	r.Post("/api/stair_report/{id}/evidence_image/", h.UploadImage)

	h.Router = r
	return h
}

// Ping answers any probe with 200 and no body.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Login verifies credentials and returns a signed token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	var user User
	if err := h.db.Where("login = ?", req.Login).First(&user).Error; err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	tok, err := IssueToken(user.ID, h.secret)
	if err != nil {
		h.log.Errorw("issue token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

// Catalogs serves the relational catalog payload.
func (h *Handler) Catalogs(w http.ResponseWriter, r *http.Request) {
	var (
		routes   []Route
		stations []Station
		stops    []Stop
		stairs   []Stair
	)
	for _, q := range []error{
		h.db.Find(&routes).Error,
		h.db.Find(&stations).Error,
		h.db.Find(&stops).Error,
		h.db.Find(&stairs).Error,
	} {
		if q != nil {
			h.log.Errorw("catalog query", "error", q)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	type routeDTO struct {
		ID         int64  `json:"id"`
		ShortName  string `json:"route_short_name"`
		RouteColor string `json:"route_color"`
	}
	type stopDTO struct {
		ID        int64 `json:"id"`
		StationID int64 `json:"station"`
	}
	type stationDTO struct {
		ID     int64   `json:"id"`
		Name   string  `json:"name"`
		Routes []int64 `json:"routes"`
	}
	type stairDTO struct {
		ID        int64 `json:"id"`
		Number    int   `json:"number"`
		StationID int64 `json:"station"`
	}
	resp := struct {
		Routes   []routeDTO   `json:"routes"`
		Stops    []stopDTO    `json:"stops"`
		Stations []stationDTO `json:"stations"`
		Stairs   []stairDTO   `json:"stairs"`
	}{}

	for _, rt := range routes {
		resp.Routes = append(resp.Routes, routeDTO{ID: rt.ID, ShortName: rt.ShortName, RouteColor: rt.RouteColor})
	}
	for _, sp := range stops {
		resp.Stops = append(resp.Stops, stopDTO{ID: sp.ID, StationID: sp.StationID})
	}
	for _, st := range stations {
		dto := stationDTO{ID: st.ID, Name: st.Name}
		if st.Routes != "" {
			if err := json.Unmarshal([]byte(st.Routes), &dto.Routes); err != nil {
				h.log.Warnw("bad routes column", "station", st.ID, "error", err)
			}
		}
		resp.Stations = append(resp.Stations, dto)
	}
	for _, st := range stairs {
		resp.Stairs = append(resp.Stairs, stairDTO{ID: st.ID, Number: st.Number, StationID: st.StationID})
	}

	writeJSON(w, http.StatusOK, resp)
}

// SubmitReport accepts one stairway submission and returns its id.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	uid, ok := GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Stair             int64    `json:"stair"`
		CodeIdentifiers   []string `json:"code_identifiers"`
		RouteStart        string   `json:"route_start"`
		PathEnd           string   `json:"path_end"`
		MaintenanceStatus string   `json:"maintenance_status"`
		MaintenanceNote   string   `json:"maintenance_note"`
		IsWorking         bool     `json:"is_working"`
		IsAligned         bool     `json:"is_aligned"`
		Notes             string   `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Stair == 0 {
		http.Error(w, "missing stair", http.StatusBadRequest)
		return
	}

	codes, _ := json.Marshal(req.CodeIdentifiers)
	report := StairReport{
		StairID:           req.Stair,
		UserID:            uid,
		CodeIdentifiers:   string(codes),
		RouteStart:        req.RouteStart,
		PathEnd:           req.PathEnd,
		MaintenanceStatus: req.MaintenanceStatus,
		MaintenanceNote:   req.MaintenanceNote,
		IsWorking:         req.IsWorking,
		IsAligned:         req.IsAligned,
		Notes:             req.Notes,
	}
	if err := h.db.Create(&report).Error; err != nil {
		h.log.Errorw("create report", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": report.ID})
}

// UploadImage stores an evidence photo for an existing report.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	reportID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid report id", http.StatusBadRequest)
		return
	}
	var report StairReport
	if err := h.db.First(&report, reportID).Error; err != nil {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	if err := r.ParseMultipartForm(maxImageBody); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "missing image file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read image", http.StatusBadRequest)
		return
	}

	img := EvidenceImage{
		ReportID: reportID,
		Key:      uuid.NewString(),
		FileName: header.Filename,
		Size:     len(data),
		Data:     data,
	}
	if err := h.db.Create(&img).Error; err != nil {
		h.log.Errorw("create image", "report", reportID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"key": img.Key,
		"url": fmt.Sprintf("/api/stair_report/%d/evidence_image/%s", reportID, img.Key),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
