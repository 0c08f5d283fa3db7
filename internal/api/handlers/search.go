package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tapedynamics/privacyguard/internal/search"
	"github.com/Tapedynamics/privacyguard/internal/storage"
	"github.com/Tapedynamics/privacyguard/pkg/dto"
)

type SearchHandler struct {
	searcher *search.Searcher
	minio    *storage.MinIOStore
}

func NewSearchHandler(searcher *search.Searcher, minio *storage.MinIOStore) *SearchHandler {
	return &SearchHandler{searcher: searcher, minio: minio}
}

// Search matches an uploaded probe image against the indexed identities and
// returns the photos they appear in, best match first, with short-lived
// download URLs.
func (h *SearchHandler) Search(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	results, err := h.searcher.Search(c.Request.Context(), imageData)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SearchResult, 0, len(results))
	for _, r := range results {
		item := dto.SearchResult{
			PhotoID: r.PhotoID,
			FaceID:  r.FaceID,
			Name:    r.Name,
			Score:   r.Score,
		}
		url, err := h.minio.PresignedURL(c.Request.Context(), r.StorageKey, urlExpiry)
		if err != nil {
			slog.Warn("presign search result", "photo_id", r.PhotoID, "error", err)
		} else {
			item.PhotoURL = url
		}
		resp = append(resp, item)
	}

	c.JSON(http.StatusOK, gin.H{"results": resp, "total": len(resp)})
}
