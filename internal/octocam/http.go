package octocam

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/octocam/internal/capture"
	"github.com/your-org/octocam/internal/geometry"
	"github.com/your-org/octocam/internal/ledger"
	"github.com/your-org/octocam/internal/metadata"
	"github.com/your-org/octocam/internal/publish"
	"github.com/your-org/octocam/internal/screen"
)

const maxBodyBytes = 1 << 20

// HTTPHandler exposes the session commands as REST endpoints.
type HTTPHandler struct {
	service *Service
	logger  *zap.Logger
	router  chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(service *Service, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HTTPHandler{
		service: service,
		logger:  logger,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/healthz", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", h.handleSession)

		r.Post("/camera/start", h.handleStart)
		r.Post("/camera/capture", h.handleCapture)
		r.Post("/camera/cancel", h.handleCancel)

		r.Route("/form", func(r chi.Router) {
			r.Post("/retake", h.handleRetake)
			r.Post("/attributes", h.handleAddAttribute)
			r.Delete("/attributes/{index}", h.handleRemoveAttribute)
			r.Get("/image", h.handleImage)
			r.Post("/metadata", h.handleMetadata)
			r.Post("/publish", h.handlePublish)
			r.Post("/publish/retry", h.handleRetry)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Put("/contract", h.handleSetContract)
			r.Post("/mint", h.handleMint)
			r.Post("/list", h.handleList)
			r.Post("/price", h.handleUpdatePrice)
			r.Post("/cancel", h.handleCancelListing)
			r.Post("/buy", h.handleBuy)
			r.Post("/withdraw", h.handleWithdraw)
			r.Get("/listings/{assetID}", h.handleListing)
			r.Get("/assets/{assetID}", h.handleAssetMetadata)
		})
	})

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HTTPHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Snapshot())
}

func (h *HTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartCamera(r.Context()); err != nil {
		h.fail(w, "start camera", err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Snapshot())
}

type captureRequest struct {
	DisplayWidth  int `json:"display_width"`
	DisplayHeight int `json:"display_height"`
}

func (h *HTTPHandler) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if !h.decode(w, r, &req) {
		return
	}
	still, err := h.service.Capture(r.Context(), req.DisplayWidth, req.DisplayHeight)
	if err != nil {
		h.fail(w, "capture", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":        screen.Form,
		"width":        still.Width(),
		"height":       still.Height(),
		"size_bytes":   still.Len(),
		"content_type": still.ContentType(),
		"captured_at":  still.CapturedAt(),
		"preview":      still.DataURI(),
	})
}

func (h *HTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelCamera(); err != nil {
		h.fail(w, "cancel camera", err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Snapshot())
}

func (h *HTTPHandler) handleRetake(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Retake(r.Context()); err != nil {
		h.fail(w, "retake", err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Snapshot())
}

type attributeRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (h *HTTPHandler) handleAddAttribute(w http.ResponseWriter, r *http.Request) {
	var req attributeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AddAttribute(req.Name, req.Value); err != nil {
		h.fail(w, "add attribute", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.service.Snapshot())
}

func (h *HTTPHandler) handleRemoveAttribute(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := h.service.RemoveAttribute(index); err != nil {
		h.fail(w, "remove attribute", err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Snapshot())
}

func (h *HTTPHandler) handleImage(w http.ResponseWriter, r *http.Request) {
	still, err := h.service.Image()
	if err != nil {
		h.fail(w, "download image", err)
		return
	}
	filename := fmt.Sprintf("octocam-%d%s", time.Now().UnixMilli(), still.Extension())
	w.Header().Set("Content-Type", still.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(still.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(still.Bytes()); err != nil {
		h.logger.Warn("write image download", zap.Error(err))
	}
}

type recordRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

func (h *HTTPHandler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.Metadata(req.Title, req.Description, req.Price)
	if err != nil {
		h.fail(w, "download metadata", err)
		return
	}
	doc, err := rec.JSON()
	if err != nil {
		h.fail(w, "download metadata", err)
		return
	}
	filename := fmt.Sprintf("metadata-%d.json", time.Now().UnixMilli())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		h.logger.Warn("write metadata download", zap.Error(err))
	}
}

func (h *HTTPHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.Publish(r.Context(), req.Title, req.Description, req.Price)
	if err != nil {
		h.fail(w, "publish", err)
		return
	}
	writeJSON(w, http.StatusCreated, newPublishView(res))
}

func (h *HTTPHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RetryMetadata(r.Context())
	if err != nil {
		h.fail(w, "retry metadata", err)
		return
	}
	writeJSON(w, http.StatusCreated, newPublishView(res))
}

type contractRequest struct {
	Address string `json:"address"`
}

func (h *HTTPHandler) handleSetContract(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetContract(req.Address); err != nil {
		h.fail(w, "set contract", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"contract_address": req.Address,
	})
}

type listingRequest struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
}

func (h *HTTPHandler) handleMint(w http.ResponseWriter, r *http.Request) {
	h.instruction(w, "mint", func() (ledger.Instruction, error) {
		return h.service.Mint(r.Context())
	})
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.instruction(w, "list", func() (ledger.Instruction, error) {
		return h.service.List(req.AssetID, req.Price)
	})
}

func (h *HTTPHandler) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.instruction(w, "update price", func() (ledger.Instruction, error) {
		return h.service.UpdatePrice(req.AssetID, req.Price)
	})
}

func (h *HTTPHandler) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.instruction(w, "cancel listing", func() (ledger.Instruction, error) {
		return h.service.CancelListing(req.AssetID)
	})
}

func (h *HTTPHandler) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.instruction(w, "buy", func() (ledger.Instruction, error) {
		return h.service.Buy(req.AssetID)
	})
}

func (h *HTTPHandler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.instruction(w, "withdraw", h.service.Withdraw)
}

func (h *HTTPHandler) handleListing(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	h.instruction(w, "get listing", func() (ledger.Instruction, error) {
		return h.service.Listing(assetID)
	})
}

func (h *HTTPHandler) handleAssetMetadata(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	h.instruction(w, "get asset metadata", func() (ledger.Instruction, error) {
		return h.service.AssetMetadata(assetID)
	})
}

func (h *HTTPHandler) instruction(w http.ResponseWriter, op string, fn func() (ledger.Instruction, error)) {
	ins, err := fn()
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instruction": ins,
		"call":        ins.Call(),
		"description": ins.Describe(),
	})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// fail maps err onto a status and writes it. A metadata-phase publish
// failure also reports the image address that was already stored.
func (h *HTTPHandler) fail(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Int("status", status), zap.Error(err))
	} else {
		h.logger.Info(op+" rejected", zap.Int("status", status), zap.Error(err))
	}

	body := map[string]string{
		"error": err.Error(),
		"code":  code,
	}
	var perr *publish.PhaseError
	if errors.As(err, &perr) && perr.ImageAddress() != "" {
		body["image_address"] = perr.ImageAddress()
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, metadata.ErrMissingField):
		return http.StatusBadRequest, "missing_field"
	case errors.Is(err, metadata.ErrIndexOutOfRange):
		return http.StatusBadRequest, "index_out_of_range"
	case errors.Is(err, geometry.ErrInvalidGeometry):
		return http.StatusBadRequest, "invalid_geometry"
	case errors.Is(err, ledger.ErrInvalidAddress),
		errors.Is(err, ledger.ErrInvalidPrice),
		errors.Is(err, ledger.ErrInvalidAssetID),
		errors.Is(err, ledger.ErrMissingArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, publish.ErrPublishInProgress):
		return http.StatusConflict, "publish_in_progress"
	case errors.Is(err, publish.ErrNotRetryable):
		return http.StatusConflict, "not_retryable"
	case errors.Is(err, screen.ErrInvalidTransition),
		errors.Is(err, screen.ErrUnreachable):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, ErrNotPublished):
		return http.StatusConflict, "not_published"
	case errors.Is(err, ledger.ErrContractNotSet):
		return http.StatusConflict, "contract_not_set"
	case errors.Is(err, ledger.ErrNoAccount):
		return http.StatusConflict, "no_account"
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable, "device_unavailable"
	case errors.Is(err, capture.ErrSourceNotReady):
		return http.StatusServiceUnavailable, "source_not_ready"
	case errors.Is(err, publish.ErrImageUploadFailed):
		return http.StatusBadGateway, "image_upload_failed"
	case errors.Is(err, publish.ErrMetadataUploadFailed):
		return http.StatusBadGateway, "metadata_upload_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
