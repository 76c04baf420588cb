package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skillproof/skillproof-backend/internal/config"
	"github.com/skillproof/skillproof-backend/internal/model"
)

// SignedFilePrefix is the public route prefix that serves signed material.
const SignedFilePrefix = "/files/"

// materialSubdir is where admin-uploaded test material lives inside the store.
const materialSubdir = "test-materials"

// uploadsPrefix routes a signed path to the candidate upload store instead of
// the material store.
const uploadsPrefix = "uploads/"

// Allowed material MIME types. PDFs are the primary case, images are
// accepted for picture-based material.
var allowedMaterialMIMETypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
}

// MaterialService resolves test material to candidate-loadable URLs and
// handles file storage for materials and candidate uploads.
//
// External links pass through unchanged. Privately stored files get an
// HMAC-signed URL whose validity covers the whole attempt: the test's
// duration plus a grace margin, never a fixed constant.
type MaterialService struct {
	cfg *config.Config
	now func() time.Time
}

// NewMaterialService creates a new MaterialService.
func NewMaterialService(cfg *config.Config) *MaterialService {
	return &MaterialService{cfg: cfg, now: time.Now}
}

// ResolveURL maps a test's material reference to a URL the candidate's
// browser can load directly.
func (s *MaterialService) ResolveURL(t *model.Test) (string, error) {
	switch t.MaterialType {
	case model.MaterialTypeLink:
		u, err := url.Parse(t.MaterialRef)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return "", fmt.Errorf("%w: malformed link %q", ErrMaterialUnavailable, t.MaterialRef)
		}
		return t.MaterialRef, nil

	case model.MaterialTypeFile:
		validity := time.Duration(t.DurationMinutes)*time.Minute + s.cfg.SignedURLGrace
		return s.SignURL(t.MaterialRef, validity)

	default:
		return "", fmt.Errorf("%w: unknown material type %q", ErrMaterialUnavailable, t.MaterialType)
	}
}

// SignURL mints a time-scoped signed URL for a file in the private store.
func (s *MaterialService) SignURL(storePath string, validity time.Duration) (string, error) {
	clean, err := cleanStorePath(storePath)
	if err != nil {
		return "", err
	}
	exp := s.now().Add(validity).Unix()
	sig := s.sign(clean, exp)
	return fmt.Sprintf("%s%s?exp=%d&sig=%s", SignedFilePrefix, clean, exp, sig), nil
}

// VerifySignedPath checks the exp/sig query pair of a signed URL.
func (s *MaterialService) VerifySignedPath(storePath, expStr, sig string) error {
	clean, err := cleanStorePath(storePath)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad expiry", ErrMaterialUnavailable)
	}
	if s.now().Unix() > exp {
		return fmt.Errorf("%w: link expired", ErrMaterialUnavailable)
	}
	expected := s.sign(clean, exp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("%w: bad signature", ErrMaterialUnavailable)
	}
	return nil
}

// Open opens a stored file for streaming. Paths under "uploads/" come from
// the candidate upload store, everything else from the material store.
func (s *MaterialService) Open(storePath string) (*os.File, error) {
	clean, err := cleanStorePath(storePath)
	if err != nil {
		return nil, err
	}
	root := s.cfg.MaterialDir
	if strings.HasPrefix(clean, uploadsPrefix) {
		root = s.cfg.UploadDir
		clean = strings.TrimPrefix(clean, uploadsPrefix)
	}
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMaterialUnavailable, err)
	}
	return f, nil
}

// SaveMaterial stores an admin-uploaded material file under a UUID name and
// returns its store path (usable as a FILE material reference).
func (s *MaterialService) SaveMaterial(file multipart.File, header *multipart.FileHeader) (string, error) {
	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedMaterialMIMETypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, contentType)
	}
	if header.Size > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}

	rel := path.Join(materialSubdir, uuid.New().String()+ext)
	if err := s.writeFile(s.cfg.MaterialDir, rel, file); err != nil {
		return "", err
	}
	return rel, nil
}

// SaveCandidateUpload stores a candidate's submission file under a path
// namespaced by the session id so uploads never collide across candidates.
// Returns the storage path, not the bytes.
func (s *MaterialService) SaveCandidateUpload(t *model.Test, sess *model.TestSession, file multipart.File, header *multipart.FileHeader) (string, error) {
	if !t.AllowUploads {
		return "", ErrUploadsDisabled
	}

	limit := s.cfg.MaxUploadBytes
	if t.UploadLimitMB != nil {
		perTest := int64(*t.UploadLimitMB) * 1024 * 1024
		if perTest < limit {
			limit = perTest
		}
	}
	if header.Size > limit {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, limit)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if len(ext) > 10 {
		ext = ""
	}
	rel := path.Join("sessions", sess.ID.String(), uuid.New().String()+ext)
	if err := s.writeFile(s.cfg.UploadDir, rel, file); err != nil {
		return "", err
	}
	return rel, nil
}

func (s *MaterialService) writeFile(root, rel string, src io.Reader) error {
	dest := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *MaterialService) sign(storePath string, exp int64) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.MaterialSigningSecret))
	fmt.Fprintf(mac, "%s\n%d", storePath, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// cleanStorePath normalizes a store-relative path and rejects traversal.
func cleanStorePath(p string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(p, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("%w: malformed path %q", ErrMaterialUnavailable, p)
	}
	return clean, nil
}
