package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dessert-api/models"
	"dessert-api/services"
	"dessert-api/storage"
)

// Feldname des Bild-Uploads in multipart/form-data.
const imageField = "image"

// Spielraum für die übrigen Formularfelder neben dem Bild.
const formOverheadBytes = 1 << 20

// DessertStore ist der Teil des DessertService, den die Handler brauchen.
type DessertStore interface {
	List(ctx context.Context) ([]models.Dessert, error)
	Get(ctx context.Context, id uint) (*models.Dessert, error)
	Create(ctx context.Context, d *models.Dessert) error
	Update(ctx context.Context, id uint, patch models.DessertPatch) (*models.Dessert, error)
	Delete(ctx context.Context, id uint) error
}

// DessertHandler bildet die fünf REST-Operationen auf den DessertStore ab.
type DessertHandler struct {
	Store          DessertStore
	Uploads        storage.ObjectStore
	Logger         *zap.Logger
	Metrics        *Metrics
	MaxUploadBytes int64

	now func() time.Time
}

// NewDessertHandler erstellt einen neuen Handler.
func NewDessertHandler(store DessertStore, uploads storage.ObjectStore, logger *zap.Logger, metrics *Metrics, maxUploadBytes int64) *DessertHandler {
	return &DessertHandler{
		Store:          store,
		Uploads:        uploads,
		Logger:         logger,
		Metrics:        metrics,
		MaxUploadBytes: maxUploadBytes,
		now:            time.Now,
	}
}

// Register hängt die Dessert-Routen an den Router.
func (h *DessertHandler) Register(router gin.IRouter) {
	rg := router.Group("/desserts")
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", h.Create)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}

// dessertInput sammelt die optionalen Felder aus JSON- oder Formular-Bodies.
type dessertInput struct {
	Name        *string          `json:"name"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description"`
}

type createDessertRequest struct {
	Name        *string          `binding:"required"`
	Price       *decimal.Decimal `binding:"required"`
	Description *string          `binding:"required"`
}

// requestError trägt Status und Meldung für fehlerhafte Requests.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

var errUploadTooLarge = &requestError{status: http.StatusRequestEntityTooLarge, message: msgUploadTooLarge}

// List - GET /desserts
func (h *DessertHandler) List(c *gin.Context) {
	desserts, err := h.Store.List(c.Request.Context())
	if err != nil {
		h.Logger.Error("Database query for all desserts failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgListFailed})
		return
	}
	c.JSON(http.StatusOK, desserts)
}

// Get - GET /desserts/:id
func (h *DessertHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
		return
	}

	d, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrDessertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
			return
		}
		h.Logger.Error("Database error while fetching dessert", zap.Uint("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgGetFailed})
		return
	}
	c.JSON(http.StatusOK, d)
}

// Create - POST /desserts
func (h *DessertHandler) Create(c *gin.Context) {
	in, file, err := h.bindInput(c)
	if err != nil {
		h.respondRequestError(c, err)
		return
	}
	if err := validateCreate(in); err != nil {
		h.respondRequestError(c, err)
		return
	}

	ctx := c.Request.Context()
	d := models.Dessert{
		Name:        *in.Name,
		Price:       *in.Price,
		Description: *in.Description,
	}
	if file != nil {
		key, err := h.storeImage(ctx, file)
		if err != nil {
			h.Logger.Error("Failed to store dessert image", zap.String("filename", file.Filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgCreateFailed})
			return
		}
		d.ImageURL = &key
	}

	if err := h.Store.Create(ctx, &d); err != nil {
		h.Logger.Error("Failed to create dessert", zap.String("name", d.Name), zap.Error(err))
		h.discardImage(d.ImageURL)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgCreateFailed})
		return
	}

	h.Metrics.DessertCreated()
	h.Logger.Info("Dessert created successfully", zap.Uint("id", d.ID), zap.String("name", d.Name))
	c.JSON(http.StatusCreated, d)
}

// Update - PUT /desserts/:id, nicht gesendete Felder behalten ihren Wert.
func (h *DessertHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
		return
	}

	in, file, err := h.bindInput(c)
	if err != nil {
		h.respondRequestError(c, err)
		return
	}
	if in.Price != nil {
		if err := checkPrice(*in.Price); err != nil {
			h.respondRequestError(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	patch := models.DessertPatch{Name: in.Name, Price: in.Price, Description: in.Description}
	if file != nil {
		key, err := h.storeImage(ctx, file)
		if err != nil {
			h.Logger.Error("Failed to store dessert image", zap.Uint("id", id), zap.String("filename", file.Filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgUpdateFailed})
			return
		}
		patch.ImageURL = &key
	}

	d, err := h.Store.Update(ctx, id, patch)
	if err != nil {
		h.discardImage(patch.ImageURL)
		if errors.Is(err, services.ErrDessertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
			return
		}
		h.Logger.Error("Failed to update dessert", zap.Uint("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgUpdateFailed})
		return
	}

	h.Metrics.DessertUpdated()
	h.Logger.Info("Dessert updated successfully", zap.Uint("id", id))
	c.JSON(http.StatusOK, d)
}

// Delete - DELETE /desserts/:id
func (h *DessertHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
		return
	}

	if err := h.Store.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrDessertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
			return
		}
		h.Logger.Error("Failed to delete dessert", zap.Uint("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgDeleteFailed})
		return
	}

	h.Metrics.DessertDeleted()
	c.JSON(http.StatusOK, gin.H{"message": msgDeleted})
}

// parseID liest die Pfad-ID. Alles außer einer positiven Ganzzahl kann keine Zeile treffen.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// bindInput liest name, price, description und das optionale Bild aus einem
// JSON-, urlencoded- oder multipart-Body. Fehlende Felder bleiben nil.
func (h *DessertHandler) bindInput(c *gin.Context) (dessertInput, *multipart.FileHeader, error) {
	var in dessertInput
	limit := h.MaxUploadBytes + formOverheadBytes
	if c.Request.ContentLength > limit {
		return in, nil, errUploadTooLarge
	}
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	switch c.ContentType() {
	case binding.MIMEJSON:
		if err := c.ShouldBindJSON(&in); err != nil {
			if errors.Is(err, io.EOF) {
				return in, nil, nil
			}
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return in, nil, errUploadTooLarge
			}
			return in, nil, badRequest("invalid JSON body")
		}
		return in, nil, nil

	case binding.MIMEMultipartPOSTForm, binding.MIMEPOSTForm:
		multi := c.ContentType() == binding.MIMEMultipartPOSTForm
		var err error
		if multi {
			err = c.Request.ParseMultipartForm(formOverheadBytes)
		} else {
			err = c.Request.ParseForm()
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return in, nil, errUploadTooLarge
			}
			return in, nil, badRequest("invalid form body")
		}
		if v, ok := c.GetPostForm("name"); ok {
			in.Name = &v
		}
		if v, ok := c.GetPostForm("description"); ok {
			in.Description = &v
		}
		if v, ok := c.GetPostForm("price"); ok {
			price, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				return in, nil, badRequest("price must be a number")
			}
			in.Price = &price
		}
		if !multi {
			return in, nil, nil
		}

		file, err := c.FormFile(imageField)
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil, nil
		}
		if err != nil {
			return in, nil, badRequest("invalid image upload")
		}
		if file.Size > h.MaxUploadBytes {
			return in, nil, errUploadTooLarge
		}
		return in, file, nil

	default:
		return in, nil, nil
	}
}

func validateCreate(in dessertInput) error {
	req := createDessertRequest{Name: in.Name, Price: in.Price, Description: in.Description}
	if err := binding.Validator.ValidateStruct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return badRequest("missing required fields: %s", strings.Join(fields, ", "))
		}
		return badRequest("invalid request body")
	}
	return checkPrice(*in.Price)
}

// Die Spalte ist numeric(10,2): höchstens zwei Nachkommastellen, Betrag unter 10^8.
var maxPrice = decimal.New(1, 8)

// checkPrice lehnt Preise ab, die die Datenbank nicht unverändert speichern würde.
func checkPrice(p decimal.Decimal) error {
	switch {
	case p.IsNegative():
		return badRequest("price must not be negative")
	case !p.Equal(p.Truncate(2)):
		return badRequest("price must have at most two decimal places")
	case p.GreaterThanOrEqual(maxPrice):
		return badRequest("price must be less than %s", maxPrice.String())
	}
	return nil
}

func (h *DessertHandler) respondRequestError(c *gin.Context, err error) {
	var re *requestError
	if errors.As(err, &re) {
		c.JSON(re.status, gin.H{"error": re.message})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// storeImage legt das Bild unter einem generierten Namen ab und gibt ihn zurück.
// Das Objekt gehört erst dann zu einem Dessert, wenn die Zeile geschrieben ist.
func (h *DessertHandler) storeImage(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := storage.GenerateFilename(fh.Filename, h.now())
	if err := h.Uploads.Put(ctx, key, f, fh.Size, fh.Header.Get("Content-Type")); err != nil {
		return "", err
	}
	h.Metrics.ImageStored()
	return key, nil
}

// discardImage entfernt ein gerade abgelegtes Bild, dessen Zeile nicht geschrieben wurde.
// Schlägt das fehl, räumt der UploadReconciler später auf.
func (h *DessertHandler) discardImage(key *string) {
	if key == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Uploads.Delete(ctx, *key); err != nil {
		h.Logger.Warn("Failed to discard uncommitted image", zap.String("key", *key), zap.Error(err))
	}
}
