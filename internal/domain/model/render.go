package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"
)

// CacheKey identifies a rendered artifact by the content of its input text.
type CacheKey string

// DeriveKey returns the hex-encoded SHA-256 digest of the exact bytes of text.
// Callers must reject empty text before deriving a key.
func DeriveKey(text string) CacheKey {
	sum := sha256.Sum256([]byte(text))
	return CacheKey(hex.EncodeToString(sum[:]))
}

func (k CacheKey) String() string {
	return string(k)
}

// Kind is the artifact type a request asks for.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindImage, KindVideo:
		return true
	default:
		return false
	}
}

// Ext returns the file extension used for artifacts of this kind.
func (k Kind) Ext() string {
	if k == KindVideo {
		return ".mp4"
	}
	return ".png"
}

// ContentType returns the MIME type served for artifacts of this kind.
func (k Kind) ContentType() string {
	if k == KindVideo {
		return "video/mp4"
	}
	return "image/png"
}

func (k Kind) String() string {
	return string(k)
}

var (
	ErrEmptyText   = errors.New("text is required")
	ErrTextTooLong = errors.New("text exceeds maximum length of 4096 bytes")
	ErrInvalidText = errors.New("text must be valid UTF-8")
)

const maxTextLength = 4096

// RenderRequest is a validated request for one artifact.
type RenderRequest struct {
	Text string
	Kind Kind
	Key  CacheKey
}

// NewRenderRequest validates text and derives the cache key.
func NewRenderRequest(text string, video bool) (RenderRequest, error) {
	if strings.TrimSpace(text) == "" {
		return RenderRequest{}, ErrEmptyText
	}
	if len(text) > maxTextLength {
		return RenderRequest{}, ErrTextTooLong
	}
	if !utf8.ValidString(text) {
		return RenderRequest{}, ErrInvalidText
	}

	kind := KindImage
	if video {
		kind = KindVideo
	}

	return RenderRequest{
		Text: text,
		Kind: kind,
		Key:  DeriveKey(text),
	}, nil
}

// IsInputError reports whether err was caused by the caller's input.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrTextTooLong) ||
		errors.Is(err, ErrInvalidText)
}
