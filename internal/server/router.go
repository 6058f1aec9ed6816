package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/images"
	"github.com/dorolabs/novelverse/backend/internal/novels"
	"github.com/dorolabs/novelverse/backend/internal/session"
	"github.com/dorolabs/novelverse/backend/internal/store"
	"github.com/dorolabs/novelverse/backend/internal/transfer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const viewerContextKey = "novelverse_viewer"

var (
	errMissingVerifier    = errors.New("assertion verifier dependency required")
	errMissingTokens      = errors.New("token manager dependency required")
	errMissingStore       = errors.New("store dependency required")
	errMissingCoordinator = errors.New("mutation coordinator dependency required")
	errMissingBaseView    = errors.New("base projector dependency required")
	errInvalidAuth        = errors.New("authorization header missing or invalid")
)

// AssertionVerifier validates upstream identity assertions.
type AssertionVerifier interface {
	Validate(token string) (novels.Viewer, error)
}

// TokenManager issues and validates backend session tokens.
type TokenManager interface {
	IssueToken(viewer novels.Viewer) (string, int64, error)
	ValidateToken(token string) (novels.Viewer, error)
}

// Dependencies wires the gateway to the engine.
type Dependencies struct {
	Verifier      AssertionVerifier
	Tokens        TokenManager
	Store         store.Client
	Coordinator   *session.Coordinator
	BaseProjector *novels.Projector
	Transfer      *transfer.Service
	Images        *images.DirHost
	Collection    string
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router for the gateway.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Tokens == nil {
		return nil, errMissingTokens
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Coordinator == nil {
		return nil, errMissingCoordinator
	}
	if deps.BaseProjector == nil {
		return nil, errMissingBaseView
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collection := deps.Collection
	if collection == "" {
		collection = session.DefaultCollection
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:    deps.Verifier,
		tokens:      deps.Tokens,
		store:       deps.Store,
		coordinator: deps.Coordinator,
		base:        deps.BaseProjector,
		transfer:    deps.Transfer,
		images:      deps.Images,
		collection:  collection,
		logger:      logger,
	}

	router.POST("/auth/session", handler.handleSessionExchange)
	router.GET("/novels", handler.optionalAuth, handler.handleListNovels)
	router.GET("/novels/:key", handler.optionalAuth, handler.handleGetNovel)
	router.GET("/novels/:key/share", handler.handleShareLink)
	router.GET("/stream", handler.handleStream)

	protected := router.Group("/")
	protected.Use(handler.requireAuth)
	protected.POST("/novels", handler.handlePublish)
	protected.PUT("/novels/:key", handler.handleEdit)
	protected.DELETE("/novels/:key", handler.handleDelete)
	protected.POST("/novels/:key/like", handler.handleToggleLike)

	if deps.Images != nil {
		protected.POST("/images", handler.handleImageUpload)
		router.Static("/images", deps.Images.Dir())
	}
	if deps.Transfer != nil {
		protected.GET("/export", handler.handleExport)
		protected.POST("/import", handler.handleImport)
	}

	return router, nil
}

type httpHandler struct {
	verifier    AssertionVerifier
	tokens      TokenManager
	store       store.Client
	coordinator *session.Coordinator
	base        *novels.Projector
	transfer    *transfer.Service
	images      *images.DirHost
	collection  string
	logger      *zap.Logger
}

type sessionRequestPayload struct {
	Assertion string `json:"assertion"`
}

type sessionResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleSessionExchange(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Assertion) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	viewer, err := h.verifier.Validate(request.Assertion)
	if err != nil {
		h.logger.Warn("identity assertion rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(viewer)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type chapterPayload struct {
	Content string `json:"content"`
}

type novelPayload struct {
	Key           string           `json:"key"`
	Title         string           `json:"title"`
	AuthorID      string           `json:"author_id"`
	AuthorName    string           `json:"author_name"`
	AuthorPhoto   string           `json:"author_photo,omitempty"`
	CoverImage    string           `json:"cover_image,omitempty"`
	Chapters      []chapterPayload `json:"chapters"`
	CreatedAt     int64            `json:"created_at"`
	UpdatedAt     int64            `json:"updated_at,omitempty"`
	LikeCount     int              `json:"like_count"`
	LikedByViewer bool             `json:"liked_by_viewer"`
}

func toNovelPayload(view novels.ViewRecord) novelPayload {
	chapters := make([]chapterPayload, 0, len(view.Chapters))
	for _, chapter := range view.Chapters {
		chapters = append(chapters, chapterPayload{Content: chapter.Content})
	}
	return novelPayload{
		Key:           view.Key,
		Title:         view.Title,
		AuthorID:      view.AuthorID,
		AuthorName:    view.AuthorName,
		AuthorPhoto:   view.AuthorPhoto,
		CoverImage:    view.CoverImage,
		Chapters:      chapters,
		CreatedAt:     view.CreatedAt,
		UpdatedAt:     view.UpdatedAt,
		LikeCount:     view.LikeCount,
		LikedByViewer: view.LikedByViewer,
	}
}

// projectFor re-derives the projected set for one viewer from the shared
// base projection. Pure recompute; the base set is never mutated.
func (h *httpHandler) projectFor(viewer novels.Viewer) *novels.Projector {
	base := h.base.Records()
	entries := make([]novels.Entry, 0, len(base))
	for _, view := range base {
		entries = append(entries, novels.Entry{Key: view.Key, Record: view.Record})
	}
	projector := novels.NewProjector()
	projector.Apply(entries, viewer)
	return projector
}

func (h *httpHandler) handleListNovels(c *gin.Context) {
	viewer := viewerFrom(c)
	projector := h.projectFor(viewer)

	records := projector.Filter(c.Query("q"))
	payload := make([]novelPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, toNovelPayload(record))
	}
	c.JSON(http.StatusOK, gin.H{"novels": payload})
}

func (h *httpHandler) handleGetNovel(c *gin.Context) {
	key, err := novels.NewNovelKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_key"})
		return
	}

	raw, err := h.store.ReadOnce(c.Request.Context(), h.collection+"/"+key.String())
	if err != nil {
		h.logger.Error("novel read failed", zap.String("key", key.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}
	if raw == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	var record novels.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		h.logger.Warn("stored record malformed", zap.String("key", key.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed"})
		return
	}

	view := novels.Normalize(key.String(), record, viewerFrom(c))
	c.JSON(http.StatusOK, toNovelPayload(view))
}

type draftPayload struct {
	Title      string   `json:"title"`
	Chapters   []string `json:"chapters"`
	CoverImage string   `json:"cover_image"`
}

func (h *httpHandler) handlePublish(c *gin.Context) {
	var request draftPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	draft := novels.Draft{
		Title:      request.Title,
		Chapters:   request.Chapters,
		CoverImage: request.CoverImage,
	}
	key, err := h.coordinator.Publish(c.Request.Context(), draft, viewerFrom(c), "")
	if err != nil {
		h.respondOperationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

func (h *httpHandler) handleEdit(c *gin.Context) {
	key, err := novels.NewNovelKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_key"})
		return
	}
	var request draftPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	draft := novels.Draft{
		Title:      request.Title,
		Chapters:   request.Chapters,
		CoverImage: request.CoverImage,
	}
	if _, err := h.coordinator.Publish(c.Request.Context(), draft, viewerFrom(c), key.String()); err != nil {
		h.respondOperationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key.String()})
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	key, err := novels.NewNovelKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_key"})
		return
	}
	if err := h.coordinator.Delete(c.Request.Context(), key.String(), viewerFrom(c)); err != nil {
		h.respondOperationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	key, err := novels.NewNovelKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_key"})
		return
	}
	if err := h.coordinator.ToggleLike(c.Request.Context(), key.String(), viewerFrom(c)); err != nil {
		h.respondOperationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleShareLink(c *gin.Context) {
	key, err := novels.NewNovelKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_key"})
		return
	}
	link, err := h.coordinator.ShareLink(key.String())
	if err != nil {
		h.logger.Error("share link derivation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "share_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

func (h *httpHandler) handleImageUpload(c *gin.Context) {
	blob, err := io.ReadAll(io.LimitReader(c.Request.Body, images.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ref, err := h.images.Save(c.Request.Context(), blob, c.ContentType())
	if err != nil {
		if errors.Is(err, images.ErrTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too_large"})
			return
		}
		if errors.Is(err, images.ErrEmptyBlob) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_blob"})
			return
		}
		h.logger.Error("image upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": ref})
}

func (h *httpHandler) handleExport(c *gin.Context) {
	document, err := h.transfer.Export(c.Request.Context())
	if err != nil {
		h.logger.Error("export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}
	c.JSON(http.StatusOK, document)
}

func (h *httpHandler) handleImport(c *gin.Context) {
	var document transfer.Document
	if err := c.ShouldBindJSON(&document); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	confirm := c.Query("confirm") == "true"

	err := h.transfer.Import(c.Request.Context(), document, confirm)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, transfer.ErrOverwriteNotConfirmed):
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": "confirmation_required"})
	case errors.Is(err, transfer.ErrImportFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document"})
	default:
		h.logger.Error("import failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import_failed"})
	}
}

func (h *httpHandler) respondOperationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, novels.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	case errors.Is(err, session.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, session.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation_failed"})
	}
}

// requireAuth rejects requests without a valid Bearer token.
func (h *httpHandler) requireAuth(c *gin.Context) {
	viewer, err := h.viewerFromRequest(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuth.Error()})
		return
	}
	c.Set(viewerContextKey, viewer)
	c.Next()
}

// optionalAuth attaches the viewer when a valid token is present; anonymous
// requests proceed with a zero viewer.
func (h *httpHandler) optionalAuth(c *gin.Context) {
	if viewer, err := h.viewerFromRequest(c); err == nil {
		c.Set(viewerContextKey, viewer)
	}
	c.Next()
}

func (h *httpHandler) viewerFromRequest(c *gin.Context) (novels.Viewer, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return novels.Viewer{}, errInvalidAuth
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return novels.Viewer{}, errInvalidAuth
	}
	viewer, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		return novels.Viewer{}, err
	}
	return viewer, nil
}

func viewerFrom(c *gin.Context) novels.Viewer {
	value, ok := c.Get(viewerContextKey)
	if !ok {
		return novels.Viewer{}
	}
	viewer, ok := value.(novels.Viewer)
	if !ok {
		return novels.Viewer{}
	}
	return viewer
}
