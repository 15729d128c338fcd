// Package httpapi exposes the sync and sharing engine over HTTP. Owner
// routes sit behind bearer middleware; share-access routes are gated by the
// share token itself.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/theworldofobi/mini-dropbox/internal/logging"
	"github.com/theworldofobi/mini-dropbox/internal/server/blob"
	"github.com/theworldofobi/mini-dropbox/internal/server/models"
	"github.com/theworldofobi/mini-dropbox/internal/server/services"
)

// SyncService is the engine surface the owner-facing routes call.
type SyncService interface {
	InitSync(ctx context.Context, ownerID string, lastSyncTS int64) (*models.ChangeSet, error)
	Upload(ctx context.Context, ownerID, name, folderID, key string, size int64, body io.Reader) (*models.FileRecord, error)
	UploadByToken(ctx context.Context, tokenID string, baseVersion int64, key string, size int64, body io.Reader) (*models.FileRecord, *services.UpdateOutcome, error)
	ProposeUpdate(ctx context.Context, ownerID, fileID string, baseVersion int64, key string, size int64, body io.Reader) (*services.UpdateOutcome, error)
	Resolve(ctx context.Context, ownerID, fileID, resolution, clientContentRef string, size int64) (int64, error)
	Download(ctx context.Context, ownerID, fileID string) (*models.FileRecord, string, error)
	ListFiles(ctx context.Context, ownerID string) ([]*models.FileRecord, error)
	Delete(ctx context.Context, ownerID, fileID string) (int64, error)
}

// ShareService is the sharing surface behind the share routes.
type ShareService interface {
	Issue(ctx context.Context, ownerID, fileID string, permission models.Permission, ttlDays *int) (*models.ShareToken, error)
	Revoke(ctx context.Context, ownerID, tokenID string) error
	List(ctx context.Context, ownerID string) ([]*models.ShareToken, error)
	AccessByToken(ctx context.Context, tokenID string) (*models.FileRecord, string, error)
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Sync      SyncService
	Shares    ShareService
	SecretKey []byte
	Logger    logging.Logger
	// NewStorageKey generates object-store keys for uploads. Defaults to
	// blob.RandomKey.
	NewStorageKey func() string
}

type handlers struct {
	sync   SyncService
	shares ShareService
	logger logging.Logger
	newKey func() string
}

// NewMux builds the HTTP mux with the sync, file, and share endpoints.
func NewMux(cfg MuxConfig) *http.ServeMux {
	h := &handlers{
		sync:   cfg.Sync,
		shares: cfg.Shares,
		logger: cfg.Logger,
		newKey: cfg.NewStorageKey,
	}
	if h.newKey == nil {
		h.newKey = blob.RandomKey
	}

	withOwner := bearerMiddleware(cfg.SecretKey, cfg.Logger)
	owned := func(fn http.HandlerFunc) http.Handler { return withOwner(fn) }

	mux := http.NewServeMux()
	mux.Handle("POST /sync/init", owned(h.initSync))
	mux.Handle("POST /sync/resolve", owned(h.resolveConflict))

	mux.Handle("POST /share/{file_id}", owned(h.issueShare))
	mux.Handle("DELETE /share/{token}", owned(h.revokeShare))
	mux.Handle("GET /share/list", owned(h.listShares))
	mux.HandleFunc("GET /share/access/{token}", h.accessShared)
	mux.HandleFunc("POST /share/access/{token}", h.uploadByToken)

	mux.Handle("POST /files/upload", owned(h.upload))
	mux.Handle("GET /files/list", owned(h.listFiles))
	mux.Handle("GET /files/download/{file_id}", owned(h.download))
	mux.Handle("DELETE /files/{file_id}", owned(h.deleteFile))

	return mux
}

// -------- wire shapes --------

type fileSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FolderID   string    `json:"folder_id,omitempty"`
	Version    int64     `json:"version"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

func toFileSummary(f *models.FileRecord) fileSummary {
	return fileSummary{
		ID:         f.ID,
		Name:       f.Name,
		FolderID:   f.FolderID,
		Version:    f.CurrentVersion,
		Size:       f.Size,
		ModifiedAt: f.ModifiedAt,
	}
}

func toFileSummaries(files []*models.FileRecord) []fileSummary {
	out := make([]fileSummary, 0, len(files))
	for _, f := range files {
		out = append(out, toFileSummary(f))
	}
	return out
}

type tokenPayload struct {
	Token      string    `json:"token"`
	FileID     string    `json:"file_id"`
	Permission string    `json:"permission"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
}

func toTokenPayload(t *models.ShareToken) tokenPayload {
	return tokenPayload{
		Token:      t.ID,
		FileID:     t.FileID,
		Permission: string(t.Permission),
		IssuedAt:   t.IssuedAt,
		ExpiresAt:  t.ExpiresAt,
		Revoked:    t.Revoked,
	}
}

// conflictPayload carries both sides of a diverged file so the caller can
// present a local-or-remote choice.
type conflictPayload struct {
	Error            string `json:"error"`
	FileID           string `json:"file_id"`
	ServerVersion    int64  `json:"server_version"`
	ServerContentRef string `json:"server_content_ref"`
	ClientContentRef string `json:"client_content_ref"`
}

func writeConflict(w http.ResponseWriter, fileID, clientRef string, outcome *services.UpdateOutcome) {
	writeJSON(w, http.StatusConflict, conflictPayload{
		Error:            "version conflict",
		FileID:           fileID,
		ServerVersion:    outcome.ServerVersion,
		ServerContentRef: outcome.ServerContentRef,
		ClientContentRef: clientRef,
	})
}

// -------- sync --------

func (h *handlers) initSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LastSyncTS int64 `json:"last_sync_ts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	cs, err := h.sync.InitSync(r.Context(), OwnerFromContext(r.Context()), req.LastSyncTS)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Changes bool          `json:"changes"`
		Creates []fileSummary `json:"creates"`
		Updates []fileSummary `json:"updates"`
		Deletes []string      `json:"deletes"`
	}{
		Changes: !cs.Empty(),
		Creates: toFileSummaries(cs.Creates),
		Updates: toFileSummaries(cs.Updates),
		Deletes: append([]string{}, cs.Deletes...),
	})
}

func (h *handlers) resolveConflict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID     string `json:"file_id"`
		Resolution string `json:"resolution"`
		ContentRef string `json:"content_ref"`
		Size       int64  `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	version, err := h.sync.Resolve(r.Context(), OwnerFromContext(r.Context()), req.FileID, req.Resolution, req.ContentRef, req.Size)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		NewVersion int64 `json:"new_version"`
	}{NewVersion: version})
}

// -------- sharing --------

func (h *handlers) issueShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permission    string `json:"permission"`
		ExpiresInDays *int   `json:"expires_in_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	token, err := h.shares.Issue(r.Context(), OwnerFromContext(r.Context()),
		r.PathValue("file_id"), models.Permission(req.Permission), req.ExpiresInDays)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenPayload(token))
}

func (h *handlers) revokeShare(w http.ResponseWriter, r *http.Request) {
	err := h.shares.Revoke(r.Context(), OwnerFromContext(r.Context()), r.PathValue("token"))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Revoked bool `json:"revoked"`
	}{Revoked: true})
}

func (h *handlers) listShares(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.shares.List(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	out := make([]tokenPayload, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toTokenPayload(t))
	}
	writeJSON(w, http.StatusOK, struct {
		Tokens []tokenPayload `json:"tokens"`
	}{Tokens: out})
}

func (h *handlers) accessShared(w http.ResponseWriter, r *http.Request) {
	file, url, err := h.shares.AccessByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		File        fileSummary `json:"file"`
		DownloadURL string      `json:"download_url"`
	}{File: toFileSummary(file), DownloadURL: url})
}

func (h *handlers) uploadByToken(w http.ResponseWriter, r *http.Request) {
	part, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file part"})
		return
	}
	defer part.Close()

	baseVersion, err := strconv.ParseInt(r.FormValue("base_version"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed base_version"})
		return
	}

	key := h.newKey()
	file, outcome, err := h.sync.UploadByToken(r.Context(), r.PathValue("token"), baseVersion, key, header.Size, part)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	if !outcome.Accepted {
		writeConflict(w, file.ID, key, outcome)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		FileID     string `json:"file_id"`
		NewVersion int64  `json:"new_version"`
	}{FileID: file.ID, NewVersion: outcome.NewVersion})
}

// -------- files --------

// upload accepts multipart content. Without a base_version field the upload
// is unconditional: an existing file with the same name and folder gets a
// new version, anything else becomes a new file. With file_id plus
// base_version it is a conditional update that can answer 409.
func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	part, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file part"})
		return
	}
	defer part.Close()

	ownerID := OwnerFromContext(r.Context())
	key := h.newKey()

	if base := r.FormValue("base_version"); base != "" {
		baseVersion, err := strconv.ParseInt(base, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed base_version"})
			return
		}
		fileID := r.FormValue("file_id")
		outcome, err := h.sync.ProposeUpdate(r.Context(), ownerID, fileID, baseVersion, key, header.Size, part)
		if err != nil {
			writeError(r.Context(), w, h.logger, err)
			return
		}
		if !outcome.Accepted {
			writeConflict(w, fileID, key, outcome)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			FileID     string `json:"file_id"`
			NewVersion int64  `json:"new_version"`
		}{FileID: fileID, NewVersion: outcome.NewVersion})
		return
	}

	file, err := h.sync.Upload(r.Context(), ownerID, header.Filename, r.FormValue("folder_id"), key, header.Size, part)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFileSummary(file))
}

func (h *handlers) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.sync.ListFiles(r.Context(), OwnerFromContext(r.Context()))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Files []fileSummary `json:"files"`
	}{Files: toFileSummaries(files)})
}

func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	_, url, err := h.sync.Download(r.Context(), OwnerFromContext(r.Context()), r.PathValue("file_id"))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *handlers) deleteFile(w http.ResponseWriter, r *http.Request) {
	version, err := h.sync.Delete(r.Context(), OwnerFromContext(r.Context()), r.PathValue("file_id"))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		NewVersion int64 `json:"new_version"`
	}{NewVersion: version})
}
