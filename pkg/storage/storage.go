package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// NamespaceStudentImages groups student profile images.
const NamespaceStudentImages = "images/students"

// ErrInvalidReference is returned for references that escape the store root.
var ErrInvalidReference = errors.New("invalid object reference")

// ObjectStore persists opaque binary content addressed by reference.
type ObjectStore interface {
	Put(ctx context.Context, namespace string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
}

// objectKey builds a unique key under namespace with an extension matching contentType.
func objectKey(namespace, contentType string) string {
	ext := ""
	if m := mimetype.Lookup(contentType); m != nil {
		ext = m.Extension()
	}
	return path.Join(strings.Trim(namespace, "/"), uuid.NewString()+ext)
}

func cleanReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidReference
	}
	cleaned := path.Clean("/" + ref)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(ref, "/") {
		return "", ErrInvalidReference
	}
	return cleaned, nil
}
