package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mcggEz/backend-gradalyze-capstone/internal/auth"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/database"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/middleware"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/profile"
	"github.com/mcggEz/backend-gradalyze-capstone/internal/storage"
)

// ---------- Auth handlers ----------

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, status, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.auditService.Log(r.Context(), nil, "register_failed", "user", "", r, map[string]interface{}{"email": req.Email})
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &resp.User.ID, "register", "user", strconv.FormatInt(resp.User.ID, 10), r, nil)
	writeJSON(w, status, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, status, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.auditService.Log(r.Context(), nil, "login_failed", "user", "", r, map[string]interface{}{"email": req.Email})
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &resp.User.ID, "login", "user", strconv.FormatInt(resp.User.ID, 10), r, nil)
	writeJSON(w, status, resp)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetEmail(r)
	if email == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	student, err := s.authService.Profile(r.Context(), email)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, student)
}

func (s *Server) handleProfileByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email query parameter is required"})
		return
	}

	// Students may only read their own profile; the service key reads any.
	if middleware.GetRole(r) != database.RoleServiceRole && email != strings.ToLower(middleware.GetEmail(r)) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	student, err := s.authService.Profile(r.Context(), email)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// ---------- Grades handlers ----------

func (s *Server) handleGetGrades(w http.ResponseWriter, r *http.Request) {
	role, claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	grades, err := s.profileService.GetGrades(r.Context(), role, claims, userID)
	if err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	if grades == nil {
		grades = json.RawMessage("[]")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"grades": grades})
}

func (s *Server) handleUpdateGrades(w http.ResponseWriter, r *http.Request) {
	role, claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Grades json.RawMessage `json:"grades"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Grades) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "grades field is required"})
		return
	}

	if err := s.profileService.UpdateGrades(r.Context(), role, claims, userID, req.Grades); err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleAddGrade(w http.ResponseWriter, r *http.Request) {
	role, claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var grade profile.GradeRecord
	if err := json.NewDecoder(r.Body).Decode(&grade); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := grade.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	updated, err := s.profileService.AddGrade(r.Context(), role, claims, userID, grade)
	if err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"grades": updated})
}

func (s *Server) handleDeleteGrade(w http.ResponseWriter, r *http.Request) {
	role, claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id field is required"})
		return
	}

	updated, err := s.profileService.DeleteGrade(r.Context(), role, claims, userID, req.ID)
	if err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"grades": updated})
}

// ---------- Document handlers ----------

var allowedUploadTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	role, claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(s.uploadMaxBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file too large or invalid multipart form"})
		return
	}

	kind := r.FormValue("kind")
	if kind == "" {
		kind = "tor"
	}
	if kind != "tor" && kind != "certificate" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be tor or certificate"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	if email == "" {
		email = strings.ToLower(middleware.GetEmail(r))
	}
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email field is required"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !allowedUploadTypes[contentType] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported file type, use PDF or an image"})
		return
	}

	userID, err := s.profileService.LookupUserID(r.Context(), role, claims, email)
	if err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	if userID == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}

	body, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read uploaded file"})
		return
	}

	bucket := s.certBucket
	if kind == "tor" {
		bucket = s.torBucket
	}
	objectPath := strconv.FormatInt(userID, 10) + "/" + storage.SanitizeObjectName(header.Filename, "document")

	// One transcript per user: the previous object goes away before the new
	// pointer is recorded.
	if kind == "tor" {
		prev, err := s.profileService.CurrentTOR(r.Context(), role, claims, userID)
		if err == nil && prev != nil && prev.StoragePath != "" {
			if rmErr := s.store.Remove(r.Context(), role, claims, s.torBucket, prev.StoragePath); rmErr != nil {
				slog.Warn("failed to remove previous transcript", "path", prev.StoragePath, "error", rmErr)
			}
		}
	}

	if err := s.store.Upload(r.Context(), role, claims, bucket, objectPath, body, contentType); err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	publicURL := s.store.PublicURL(bucket, objectPath)

	if kind == "tor" {
		if err := s.profileService.RecordTORUpload(r.Context(), role, claims, userID, publicURL, objectPath); err != nil {
			writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
			return
		}
		s.auditService.Log(r.Context(), &userID, "upload_tor", "document", objectPath, r, map[string]interface{}{"file_name": header.Filename})
		writeJSON(w, http.StatusOK, map[string]interface{}{"url": publicURL, "path": objectPath, "kind": kind})
		return
	}

	set, err := s.profileService.RecordCertificateUpload(r.Context(), role, claims, userID, objectPath, publicURL)
	if err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	s.auditService.Log(r.Context(), &userID, "upload_certificate", "document", objectPath, r, map[string]interface{}{"file_name": header.Filename})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":   publicURL,
		"path":  objectPath,
		"kind":  kind,
		"count": set.Count,
	})
}

func (s *Server) handleDeleteCertificate(w http.ResponseWriter, r *http.Request) {
	role, claims, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Email string `json:"email"`
		Path  string `json:"path"`
		URL   string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Path == "" && req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path or url is required"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		email = strings.ToLower(middleware.GetEmail(r))
	}
	userID, err := s.profileService.LookupUserID(r.Context(), role, claims, email)
	if err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	if userID == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}

	removed, err := s.profileService.DeleteCertificate(r.Context(), role, claims, userID, req.Path, req.URL)
	if err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	if removed == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "certificate not found"})
		return
	}

	if rmErr := s.store.Remove(r.Context(), role, claims, s.certBucket, removed); rmErr != nil {
		slog.Warn("failed to remove certificate object", "path", removed, "error", rmErr)
	}

	s.auditService.Log(r.Context(), &userID, "delete_certificate", "document", removed, r, nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "path": removed})
}

func (s *Server) handleDeleteTOR(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email query parameter is required"})
		return
	}

	role := middleware.GetRole(r)
	claims := middleware.GetClaims(r)

	// Grab the storage pointer before the columns are nulled. Principals whose
	// policies hide the row simply skip the object cleanup.
	var torPath string
	var userID int64
	if id, err := s.profileService.LookupUserID(r.Context(), role, claims, email); err == nil && id != 0 {
		userID = id
		if prev, err := s.profileService.CurrentTOR(r.Context(), role, claims, id); err == nil && prev != nil {
			torPath = prev.StoragePath
		}
	}

	cleared, err := s.profileService.ClearTORByEmail(r.Context(), role, claims, email)
	if err != nil {
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	if !cleared {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}

	if torPath != "" {
		if rmErr := s.store.Remove(r.Context(), role, claims, s.torBucket, torPath); rmErr != nil {
			slog.Warn("failed to remove transcript object", "path", torPath, "error", rmErr)
		}
	}

	var auditID *int64
	if userID != 0 {
		auditID = &userID
	}
	s.auditService.Log(r.Context(), auditID, "delete_tor", "user", email, r, nil)
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) handleProfileSummary(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.PathValue("email")))
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	summary, err := s.profileService.ProfileSummary(r.Context(), middleware.GetRole(r), middleware.GetClaims(r), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeJSON(w, dbErrorStatus(err), map[string]string{"error": sanitizeDBError(err)})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ---------- Session helpers ----------

func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (string, database.JWTClaims, bool) {
	role := middleware.GetRole(r)
	if role == database.RoleAnon {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", nil, false
	}
	return role, middleware.GetClaims(r), true
}

func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return 0, false
	}
	return id, true
}
