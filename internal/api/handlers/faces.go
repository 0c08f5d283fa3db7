package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Tapedynamics/privacyguard/internal/consent"
	"github.com/Tapedynamics/privacyguard/internal/models"
	"github.com/Tapedynamics/privacyguard/internal/pipeline"
	"github.com/Tapedynamics/privacyguard/internal/storage"
	"github.com/Tapedynamics/privacyguard/pkg/dto"
)

type FaceHandler struct {
	db       *storage.PostgresStore
	consent  *consent.Service
	enqueuer *pipeline.Enqueuer
}

func NewFaceHandler(db *storage.PostgresStore, consentSvc *consent.Service, enqueuer *pipeline.Enqueuer) *FaceHandler {
	return &FaceHandler{db: db, consent: consentSvc, enqueuer: enqueuer}
}

func (h *FaceHandler) List(c *gin.Context) {
	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.db.GetPhoto(c.Request.Context(), photoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	faces, err := h.db.ListFaces(c.Request.Context(), photoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.FaceResponse, 0, len(faces))
	for i := range faces {
		resp = append(resp, faceResponse(&faces[i]))
	}

	c.JSON(http.StatusOK, gin.H{"faces": resp, "total": len(resp)})
}

// Rename assigns a person name to a face. Naming an unnamed face queues it
// for identity indexing.
func (h *FaceHandler) Rename(c *gin.Context) {
	face, ok := h.resolveFace(c)
	if !ok {
		return
	}

	var req dto.RenameFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.consent.Rename(c.Request.Context(), face.ID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, consent.ErrEmptyName):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, consent.ErrFaceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, faceResponse(updated))
}

// Consent transitions a face's consent status. All transitions between the
// three states are allowed, so an approval stays revocable.
func (h *FaceHandler) Consent(c *gin.Context) {
	face, ok := h.resolveFace(c)
	if !ok {
		return
	}

	var req dto.ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.consent.SetConsent(c.Request.Context(), face.ID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidConsentStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, consent.ErrFaceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, faceResponse(updated))
}

// Index queues an index job for a named face. With force an already-indexed
// face is re-registered under a fresh external id.
func (h *FaceHandler) Index(c *gin.Context) {
	face, ok := h.resolveFace(c)
	if !ok {
		return
	}

	if face.Name == nil || *face.Name == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "face has no name; set a name first"})
		return
	}

	var req dto.IndexFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.enqueuer.SubmitIndex(c.Request.Context(), face.ID, req.Force); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"face_id": face.ID, "status": "queued", "force": req.Force})
}

// resolveFace loads the face addressed by the route and verifies it belongs
// to the addressed photo. Responds and returns false on any failure.
func (h *FaceHandler) resolveFace(c *gin.Context) (*models.Face, bool) {
	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return nil, false
	}
	faceID, err := uuid.Parse(c.Param("faceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid face id"})
		return nil, false
	}

	face, err := h.db.GetFace(c.Request.Context(), faceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if face == nil || face.PhotoID != photoID {
		c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
		return nil, false
	}
	return face, true
}
