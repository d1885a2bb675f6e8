package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tesorrells/jellyfin-sync/internal/integrity"
	"github.com/tesorrells/jellyfin-sync/internal/logging"
	"github.com/tesorrells/jellyfin-sync/internal/manifest"
	"github.com/tesorrells/jellyfin-sync/internal/seeder"
)

// SeedStarter abstracts the supervisor for handler tests.
type SeedStarter interface {
	StartOrReuse(sourcePath string, onReady func(magnet string)) (seeder.Status, error)
	ActiveSeeds() map[string]string
}

// Handler holds the curator API route handlers.
type Handler struct {
	manifests *manifest.Store
	seeds     SeedStarter
	hashFile  func(path string) (string, error)
	logger    *slog.Logger
}

// NewHandler creates a Handler over the manifest store and seed supervisor.
func NewHandler(manifests *manifest.Store, seeds SeedStarter, logger *slog.Logger) *Handler {
	return &Handler{
		manifests: manifests,
		seeds:     seeds,
		hashFile:  integrity.HashFile,
		logger:    logging.NewComponentLogger(logger, "server"),
	}
}

// Health handles GET /.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	groups, err := h.manifests.Groups()
	if err != nil {
		h.logger.Error("list groups failed", logging.Args(logging.Error(err))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if groups == nil {
		groups = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"groups": groups,
	})
}

// GetManifest handles GET /manifest/{group}.json.
func (h *Handler) GetManifest(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	m, err := h.manifests.Get(group)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("no manifest for group"))
			return
		}
		h.logger.Error("read manifest failed",
			logging.Args(logging.String(logging.FieldGroup, group), logging.Error(err))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// PutManifest handles POST /manifest/{group}.json: full replacement of the
// group's manifest.
func (h *Handler) PutManifest(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	var m manifest.Manifest
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid manifest body"))
		return
	}
	m.Group = group
	if err := h.manifests.Put(group, &m); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.logger.Info("manifest replaced", logging.Args(
		logging.String(logging.FieldGroup, group), logging.Int("items", len(m.Items)))...)
	writeJSON(w, http.StatusCreated, m)
}

type seedRequest struct {
	Path     string `json:"path"`
	Group    string `json:"group"`
	Title    string `json:"title,omitempty"`
	DestPath string `json:"dest_path,omitempty"`
}

type seedResponse struct {
	Status string  `json:"status"`
	Magnet *string `json:"magnet"`
	Group  string  `json:"group"`
}

// StartSeed handles POST /seed: starts seeding a local file and, once the
// magnet address is discovered, appends the item to the group manifest.
func (h *Handler) StartSeed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Path) == "" || strings.TrimSpace(req.Group) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and group are required"))
		return
	}

	title := req.Title
	if title == "" {
		title = deriveTitle(req.Path)
	}
	destPath := req.DestPath
	if destPath == "" {
		destPath = filepath.Base(req.Path)
	}

	status, err := h.seeds.StartOrReuse(req.Path, h.publishOnReady(req.Path, req.Group, title, destPath))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	resp := seedResponse{Group: req.Group}
	switch status.State {
	case seeder.StateReady:
		magnet := status.Magnet
		resp.Status = "already-seeding"
		resp.Magnet = &magnet
		writeJSON(w, http.StatusOK, resp)
	default:
		resp.Status = "seeding"
		writeJSON(w, http.StatusAccepted, resp)
	}
}

// publishOnReady hashes the source and appends the item to the group
// manifest. Runs on the discovery goroutine, once per seed. An empty magnet
// means seeding failed; nothing is published.
func (h *Handler) publishOnReady(sourcePath, group, title, destPath string) func(string) {
	return func(magnet string) {
		logger := h.logger.With(
			logging.String(logging.FieldGroup, group),
			logging.String(logging.FieldPath, sourcePath))

		if magnet == "" {
			logger.Warn("seed failed, item not published")
			return
		}

		sum, err := h.hashFile(sourcePath)
		if err != nil {
			logger.Error("hash source failed, publishing without checksum", logging.Args(logging.Error(err))...)
			sum = ""
		}
		item := manifest.Item{
			Title:  title,
			Magnet: magnet,
			Path:   destPath,
			SHA256: sum,
		}
		if err := h.manifests.Append(group, item); err != nil {
			logger.Error("manifest append failed", logging.Args(logging.Error(err))...)
			return
		}
		logger.Info("item published", logging.Args(logging.String(logging.FieldMagnet, magnet))...)
	}
}

// ListSeeds handles GET /seeds.
func (h *Handler) ListSeeds(w http.ResponseWriter, r *http.Request) {
	seeds := h.seeds.ActiveSeeds()
	if seeds == nil {
		seeds = map[string]string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"seeds": seeds})
}
