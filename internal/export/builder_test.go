package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/Tapedynamics/privacyguard/internal/config"
	"github.com/Tapedynamics/privacyguard/internal/models"
)

type memStore struct {
	photos []models.Photo
	faces  map[uuid.UUID][]models.Face
}

func (m *memStore) ListExportPhotos(ctx context.Context) ([]models.Photo, error) {
	return m.photos, nil
}

func (m *memStore) ListFaces(ctx context.Context, photoID uuid.UUID) ([]models.Face, error) {
	return m.faces[photoID], nil
}

type memObjects struct {
	data map[string][]byte
}

func (m *memObjects) GetObject(ctx context.Context, key string) ([]byte, error) {
	d, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return d, nil
}

func testConfig() config.ExportConfig {
	return config.ExportConfig{BlurSigma: 10, JPEGQuality: 90}
}

func addPhoto(store *memStore, objects *memObjects, img []byte, filename string, consents ...models.ConsentStatus) models.Photo {
	p := models.Photo{
		ID:         uuid.New(),
		Filename:   filename,
		StorageKey: "photos/" + filename,
		Status:     models.PhotoStatusReady,
		CreatedAt:  time.Now(),
	}
	store.photos = append(store.photos, p)
	objects.data[p.StorageKey] = img

	for i, cs := range consents {
		store.faces[p.ID] = append(store.faces[p.ID], models.Face{
			ID:            uuid.New(),
			PhotoID:       p.ID,
			BBox:          models.BoundingBox{Left: 0.1 * float64(i+1), Top: 0.1, Width: 0.2, Height: 0.2},
			ConsentStatus: cs,
		})
	}
	return p
}

func buildArchive(t *testing.T, b *Builder, mode Mode) (*Summary, map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	summary, err := b.WriteArchive(context.Background(), &buf, mode)
	if err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	entries := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		entries[f.Name] = data
	}
	return summary, entries
}

func TestApprovedModeMembership(t *testing.T) {
	store := &memStore{faces: make(map[uuid.UUID][]models.Face)}
	objects := &memObjects{data: make(map[string][]byte)}
	img := checkerboard(t, 32, 32)

	allApproved := addPhoto(store, objects, img, "a.png", models.ConsentStatusApproved, models.ConsentStatusApproved)
	onePending := addPhoto(store, objects, img, "b.png", models.ConsentStatusApproved, models.ConsentStatusPending)
	rejected := addPhoto(store, objects, img, "c.png", models.ConsentStatusRejected)
	noFaces := addPhoto(store, objects, img, "d.png")

	b := NewBuilder(store, objects, testConfig())
	summary, entries := buildArchive(t, b, ModeApproved)

	if summary.Included != 2 || summary.Excluded != 2 {
		t.Errorf("included=%d excluded=%d, want 2/2", summary.Included, summary.Excluded)
	}
	if !summary.Complete() {
		t.Errorf("unexpected failures: %+v", summary.Failures)
	}

	for _, p := range []models.Photo{allApproved, noFaces} {
		name := p.ID.String() + "_" + p.Filename
		if data, ok := entries[name]; !ok {
			t.Errorf("missing entry %s", name)
		} else if !bytes.Equal(data, img) {
			t.Errorf("entry %s was modified, approved mode must keep original bytes", name)
		}
	}
	for _, p := range []models.Photo{onePending, rejected} {
		name := p.ID.String() + "_" + p.Filename
		if _, ok := entries[name]; ok {
			t.Errorf("entry %s present, photo has non-approved faces", name)
		}
	}
}

func TestPrivacySafeModeIncludesEverything(t *testing.T) {
	store := &memStore{faces: make(map[uuid.UUID][]models.Face)}
	objects := &memObjects{data: make(map[string][]byte)}
	img := checkerboard(t, 32, 32)

	approved := addPhoto(store, objects, img, "a.png", models.ConsentStatusApproved)
	pending := addPhoto(store, objects, img, "b.png", models.ConsentStatusPending)

	b := NewBuilder(store, objects, testConfig())
	summary, entries := buildArchive(t, b, ModePrivacySafe)

	if summary.Included != 2 || summary.Excluded != 0 {
		t.Errorf("included=%d excluded=%d, want 2/0", summary.Included, summary.Excluded)
	}

	approvedEntry := entries[approved.ID.String()+"_"+approved.Filename]
	if !bytes.Equal(approvedEntry, img) {
		t.Errorf("fully approved photo was re-encoded, want original bytes")
	}

	pendingEntry := entries[pending.ID.String()+"_"+pending.Filename]
	if len(pendingEntry) == 0 {
		t.Fatal("photo with pending face missing from archive")
	}
	if bytes.Equal(pendingEntry, img) {
		t.Errorf("photo with pending face included unredacted")
	}
}

func TestPrivacySafeModeBlursOnlyNonApprovedFaces(t *testing.T) {
	store := &memStore{faces: make(map[uuid.UUID][]models.Face)}
	objects := &memObjects{data: make(map[string][]byte)}
	img := checkerboard(t, 64, 64)

	p := addPhoto(store, objects, img, "mixed.png")
	store.faces[p.ID] = []models.Face{
		{
			ID:            uuid.New(),
			PhotoID:       p.ID,
			BBox:          models.BoundingBox{Left: 0, Top: 0, Width: 0.25, Height: 0.25},
			ConsentStatus: models.ConsentStatusApproved,
		},
		{
			ID:            uuid.New(),
			PhotoID:       p.ID,
			BBox:          models.BoundingBox{Left: 0.5, Top: 0.5, Width: 0.5, Height: 0.5},
			ConsentStatus: models.ConsentStatusPending,
		},
	}

	b := NewBuilder(store, objects, testConfig())
	summary, entries := buildArchive(t, b, ModePrivacySafe)

	if summary.Included != 1 || summary.Excluded != 0 {
		t.Errorf("included=%d excluded=%d, want 1/0", summary.Included, summary.Excluded)
	}

	entry := entries[p.ID.String()+"_"+p.Filename]
	if len(entry) == 0 {
		t.Fatal("mixed-consent photo missing from archive")
	}

	orig, err := imaging.Decode(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("decode original: %v", err)
	}
	redacted, err := imaging.Decode(bytes.NewReader(entry))
	if err != nil {
		t.Fatalf("decode entry: %v", err)
	}

	// Interior of the pending face's region: smeared.
	if pixelDiff(orig, redacted, 52, 52) < 32 {
		t.Errorf("pending face region barely changed, expected a strong blur")
	}
	// Interior of the approved face's region: only encoding noise.
	if pixelDiff(orig, redacted, 4, 4) > 24 {
		t.Errorf("approved face region changed more than encoding noise allows")
	}
}

func TestFetchFailureIsReported(t *testing.T) {
	store := &memStore{faces: make(map[uuid.UUID][]models.Face)}
	objects := &memObjects{data: make(map[string][]byte)}
	img := checkerboard(t, 32, 32)

	good := addPhoto(store, objects, img, "good.png")
	missing := addPhoto(store, objects, img, "missing.png")
	delete(objects.data, missing.StorageKey)

	b := NewBuilder(store, objects, testConfig())
	summary, entries := buildArchive(t, b, ModeApproved)

	if summary.Included != 1 {
		t.Errorf("included = %d, want 1", summary.Included)
	}
	if summary.Complete() {
		t.Fatal("summary reports complete despite a fetch failure")
	}
	if len(summary.Failures) != 1 || summary.Failures[0].PhotoID != missing.ID {
		t.Errorf("failures = %+v, want one entry for %s", summary.Failures, missing.ID)
	}

	if _, ok := entries[good.ID.String()+"_"+good.Filename]; !ok {
		t.Error("good photo missing, a failed entry must not stop the build")
	}

	// The failure must also be visible inside the archive itself.
	manifest, ok := entries["manifest.json"]
	if !ok {
		t.Fatal("manifest.json missing")
	}
	var got Summary
	if err := json.Unmarshal(manifest, &got); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if len(got.Failures) != 1 {
		t.Errorf("manifest failures = %d, want 1", len(got.Failures))
	}
}

func TestArchiveDeterministicMembership(t *testing.T) {
	store := &memStore{faces: make(map[uuid.UUID][]models.Face)}
	objects := &memObjects{data: make(map[string][]byte)}
	img := checkerboard(t, 32, 32)
	addPhoto(store, objects, img, "a.png", models.ConsentStatusApproved)
	addPhoto(store, objects, img, "b.png", models.ConsentStatusPending)

	b := NewBuilder(store, objects, testConfig())
	_, first := buildArchive(t, b, ModePrivacySafe)
	_, second := buildArchive(t, b, ModePrivacySafe)

	if len(first) != len(second) {
		t.Fatalf("entry counts differ: %d vs %d", len(first), len(second))
	}
	for name, data := range first {
		if !bytes.Equal(second[name], data) {
			t.Errorf("entry %s differs between rebuilds", name)
		}
	}
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("approved"); err != nil {
		t.Errorf("ParseMode(approved): %v", err)
	}
	if _, err := ParseMode("privacy-safe"); err != nil {
		t.Errorf("ParseMode(privacy-safe): %v", err)
	}
	if _, err := ParseMode("everything"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}
