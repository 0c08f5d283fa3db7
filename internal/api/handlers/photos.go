package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Tapedynamics/privacyguard/internal/export"
	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/observability"
	"github.com/Tapedynamics/privacyguard/internal/pipeline"
	"github.com/Tapedynamics/privacyguard/internal/storage"
	"github.com/Tapedynamics/privacyguard/pkg/dto"
)

const (
	timeFormat = "2006-01-02T15:04:05Z"
	urlExpiry  = 15 * time.Minute
)

type PhotoHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	enqueuer *pipeline.Enqueuer

	blurSigma   float64
	jpegQuality int
}

func NewPhotoHandler(db *storage.PostgresStore, minio *storage.MinIOStore, enqueuer *pipeline.Enqueuer, blurSigma float64, jpegQuality int) *PhotoHandler {
	return &PhotoHandler{
		db:          db,
		minio:       minio,
		enqueuer:    enqueuer,
		blurSigma:   blurSigma,
		jpegQuality: jpegQuality,
	}
}

// Upload accepts one or more multipart images, stores the original bytes
// and queues face detection for each. The response arrives before detection
// runs; clients poll the photo status or subscribe to the event feed.
func (h *PhotoHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	var headers []*multipart.FileHeader
	for _, fhs := range form.File {
		headers = append(headers, fhs...)
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one image file required"})
		return
	}

	resp := make([]dto.PhotoResponse, 0, len(headers))
	for _, header := range headers {
		photo, err := h.storeUpload(c, header)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		observability.PhotosUploaded.Inc()
		resp = append(resp, photoResponse(photo, 0))
	}

	c.JSON(http.StatusAccepted, gin.H{"photos": resp, "total": len(resp)})
}

func (h *PhotoHandler) storeUpload(c *gin.Context, header *multipart.FileHeader) (*models.Photo, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", header.Filename, err)
	}
	if len(imageData) == 0 {
		return nil, fmt.Errorf("upload %s is empty", header.Filename)
	}

	photo := &models.Photo{
		ID:       uuid.New(),
		Filename: header.Filename,
		Status:   models.PhotoStatusUploaded,
	}
	photo.StorageKey = "photos/" + photo.ID.String() + "_" + header.Filename

	if err := h.minio.PutObject(c.Request.Context(), photo.StorageKey, imageData, header.Header.Get("Content-Type")); err != nil {
		return nil, fmt.Errorf("store upload %s: %w", header.Filename, err)
	}
	if err := h.db.CreatePhoto(c.Request.Context(), photo); err != nil {
		return nil, err
	}
	if err := h.enqueuer.SubmitDetection(c.Request.Context(), photo.ID, photo.StorageKey); err != nil {
		return nil, fmt.Errorf("queue detection: %w", err)
	}
	return photo, nil
}

func (h *PhotoHandler) List(c *gin.Context) {
	var status *models.PhotoStatus
	if s := c.Query("status"); s != "" {
		st := models.PhotoStatus(s)
		switch st {
		case models.PhotoStatusUploaded, models.PhotoStatusDetecting, models.PhotoStatusReady, models.PhotoStatusDetectionFailed:
			status = &st
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
	}

	photos, err := h.db.ListPhotos(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PhotoResponse, 0, len(photos))
	for i := range photos {
		count, _ := h.db.CountFaces(c.Request.Context(), photos[i].ID)
		resp = append(resp, photoResponse(&photos[i], count))
	}

	c.JSON(http.StatusOK, gin.H{"photos": resp, "total": len(resp)})
}

func (h *PhotoHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.db.GetPhoto(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	faces, err := h.db.ListFaces(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	faceResp := make([]dto.FaceResponse, 0, len(faces))
	for i := range faces {
		faceResp = append(faceResp, faceResponse(&faces[i]))
	}

	c.JSON(http.StatusOK, dto.PhotoDetailResponse{
		PhotoResponse: photoResponse(photo, len(faces)),
		Faces:         faceResp,
	})
}

// URL returns a short-lived download URL for the original image.
func (h *PhotoHandler) URL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.db.GetPhoto(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	url, err := h.minio.PresignedURL(c.Request.Context(), photo.StorageKey, urlExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.PhotoURLResponse{URL: url, ExpiresIn: int(urlExpiry.Seconds())})
}

// Blur renders a privacy-safe version of the photo with every non-approved
// face blurred and stores it alongside the original. Re-running with
// unchanged consent state produces the same output.
func (h *PhotoHandler) Blur(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.db.GetPhoto(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}
	if photo.Status != models.PhotoStatusReady {
		c.JSON(http.StatusConflict, gin.H{"error": "photo is not ready"})
		return
	}

	faces, err := h.db.ListFaces(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var boxes []models.BoundingBox
	for _, f := range faces {
		if f.ConsentStatus != models.ConsentStatusApproved {
			boxes = append(boxes, f.BBox)
		}
	}

	data, err := h.minio.GetObject(c.Request.Context(), photo.StorageKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch image failed"})
		return
	}

	blurred, err := export.Redact(data, boxes, h.blurSigma, h.jpegQuality)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "blur failed: " + err.Error()})
		return
	}

	key := blurredKey(id)
	if err := h.minio.PutObject(c.Request.Context(), key, blurred, "image/jpeg"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store blurred image failed"})
		return
	}

	url, err := h.minio.PresignedURL(c.Request.Context(), key, urlExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"photo_id": id, "url": url, "blurred_faces": len(boxes)})
}

// BlurredURL returns a download URL for a previously rendered blur, or 404
// if none has been built yet.
func (h *PhotoHandler) BlurredURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	key := blurredKey(id)
	exists, err := h.minio.StatObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "no blurred rendition, POST /blur first"})
		return
	}

	url, err := h.minio.PresignedURL(c.Request.Context(), key, urlExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.PhotoURLResponse{URL: url, ExpiresIn: int(urlExpiry.Seconds())})
}

func blurredKey(photoID uuid.UUID) string {
	return "blurred/" + photoID.String() + ".jpg"
}

func photoResponse(p *models.Photo, faceCount int) dto.PhotoResponse {
	return dto.PhotoResponse{
		ID:        p.ID,
		Filename:  p.Filename,
		Status:    string(p.Status),
		FaceCount: faceCount,
		CreatedAt: p.CreatedAt.Format(timeFormat),
		UpdatedAt: p.UpdatedAt.Format(timeFormat),
	}
}

func faceResponse(f *models.Face) dto.FaceResponse {
	return dto.FaceResponse{
		ID:      f.ID,
		PhotoID: f.PhotoID,
		BBox: dto.BoundingBox{
			Left:   f.BBox.Left,
			Top:    f.BBox.Top,
			Width:  f.BBox.Width,
			Height: f.BBox.Height,
		},
		Name:           f.Name,
		ConsentStatus:  string(f.ConsentStatus),
		ExternalFaceID: f.ExternalFaceID,
		CreatedAt:      f.CreatedAt.Format(timeFormat),
		UpdatedAt:      f.UpdatedAt.Format(timeFormat),
	}
}
