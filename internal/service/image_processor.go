package service

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/course-admin-api/internal/models"
)

const profileImageField = "profile_image"

// ImagePolicy bounds accepted profile images.
type ImagePolicy struct {
	MaxBytes     int64
	AllowedTypes []string
	MaxDimension int
}

// DefaultImagePolicy accepts jpeg, png, gif and svg images up to 2048 KiB.
func DefaultImagePolicy() ImagePolicy {
	return ImagePolicy{
		MaxBytes:     2048 * 1024,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/svg+xml"},
		MaxDimension: 1024,
	}
}

// PreparedImage is an upload that passed validation and is ready to be stored.
type PreparedImage struct {
	Data        []byte
	ContentType string
}

// ImageProcessor validates uploads by sniffed content and shrinks oversized rasters.
type ImageProcessor struct {
	policy ImagePolicy
}

// NewImageProcessor constructs an ImageProcessor; zero policy fields take defaults.
func NewImageProcessor(policy ImagePolicy) *ImageProcessor {
	def := DefaultImagePolicy()
	if policy.MaxBytes <= 0 {
		policy.MaxBytes = def.MaxBytes
	}
	if len(policy.AllowedTypes) == 0 {
		policy.AllowedTypes = def.AllowedTypes
	}
	return &ImageProcessor{policy: policy}
}

// Prepare checks size and encoding of upload and returns the bytes to store.
func (p *ImageProcessor) Prepare(upload *models.ImageUpload) (*PreparedImage, error) {
	if upload == nil || len(upload.Data) == 0 {
		return nil, fieldError("invalid profile image", profileImageField, "required", "is empty")
	}
	if int64(len(upload.Data)) > p.policy.MaxBytes {
		return nil, fieldError("invalid profile image", profileImageField, "max",
			fmt.Sprintf("must be at most %d KiB", p.policy.MaxBytes/1024))
	}

	detected := mimetype.Detect(upload.Data)
	if !mimetype.EqualsAny(detected.String(), p.policy.AllowedTypes...) {
		return nil, fieldError("invalid profile image", profileImageField, "mimes",
			fmt.Sprintf("type %s is not allowed", detected.String()))
	}
	contentType := detected.String()

	var format imaging.Format
	switch contentType {
	case "image/jpeg":
		format = imaging.JPEG
	case "image/png":
		format = imaging.PNG
	case "image/gif":
		format = imaging.GIF
	default:
		return &PreparedImage{Data: upload.Data, ContentType: contentType}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(upload.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fieldError("invalid profile image", profileImageField, "image", "could not be decoded")
	}

	limit := p.policy.MaxDimension
	bounds := img.Bounds()
	if limit <= 0 || format == imaging.GIF || (bounds.Dx() <= limit && bounds.Dy() <= limit) {
		return &PreparedImage{Data: upload.Data, ContentType: contentType}, nil
	}

	resized := imaging.Fit(img, limit, limit, imaging.Lanczos)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, resized, format); err != nil {
		return nil, fmt.Errorf("encode resized image: %w", err)
	}
	return &PreparedImage{Data: buf.Bytes(), ContentType: contentType}, nil
}
