// Package artifact fetches and normalizes pairing artifacts.
//
// The gateway answers a scan request with either raw image bytes, a
// base64/data-URI encoded image, or a plain-text pairing payload. Everything
// is normalized into one canonical representation: a decodable PNG. Payloads
// that cannot be normalized yield an invalid-artifact error, which signals
// the session to regenerate instead of failing hard.
package artifact

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	_ "image/jpeg"

	qrcode "github.com/skip2/go-qrcode"
)

// MinPayloadBytes is the minimum gateway payload length. Anything shorter is
// a truncated or placeholder response, not a scannable artifact.
const MinPayloadBytes = 100

// qrImageSize is the edge length of locally rendered QR images.
const qrImageSize = 256

// ErrInvalidArtifact marks a payload that failed normalization. Match with
// errors.Is; the concrete *InvalidArtifactError carries the reason.
var ErrInvalidArtifact = errors.New("invalid pairing artifact")

// InvalidArtifactError reports why a gateway payload could not be normalized.
type InvalidArtifactError struct {
	Reason string
}

func (e *InvalidArtifactError) Error() string {
	return fmt.Sprintf("invalid pairing artifact: %s", e.Reason)
}

func (e *InvalidArtifactError) Is(target error) bool {
	return target == ErrInvalidArtifact
}

func invalid(reason string) error {
	return &InvalidArtifactError{Reason: reason}
}

// Artifact is a normalized, display-ready pairing artifact.
type Artifact struct {
	// PNG is the canonical image encoding, verified decodable.
	PNG []byte
}

// Normalize converts a raw gateway scan payload into a canonical PNG.
func Normalize(body []byte, contentType string) (Artifact, error) {
	if len(body) < MinPayloadBytes {
		return Artifact{}, invalid(fmt.Sprintf("payload too short: %d bytes", len(body)))
	}

	// Raw image bytes, declared or sniffed.
	if strings.HasPrefix(contentType, "image/") || sniffImage(body) {
		return canonicalPNG(body)
	}

	text := strings.TrimSpace(string(body))

	// data:image/...;base64,xxxx
	if strings.HasPrefix(text, "data:image/") {
		_, b64, ok := strings.Cut(text, ",")
		if !ok {
			return Artifact{}, invalid("malformed data URI")
		}
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return Artifact{}, invalid("data URI is not valid base64")
		}
		return canonicalPNG(decoded)
	}

	// Bare base64-encoded image.
	if decoded, err := base64.StdEncoding.DecodeString(text); err == nil && sniffImage(decoded) {
		return canonicalPNG(decoded)
	}

	// Text pairing payload: render it into a QR image locally.
	if isPrintable(text) {
		pngBytes, err := qrcode.Encode(text, qrcode.Medium, qrImageSize)
		if err != nil {
			return Artifact{}, invalid(fmt.Sprintf("text payload not QR-encodable: %v", err))
		}
		return Artifact{PNG: pngBytes}, nil
	}

	return Artifact{}, invalid("unrecognized payload format")
}

// canonicalPNG verifies decodability and re-encodes non-PNG images.
func canonicalPNG(data []byte) (Artifact, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Artifact{}, invalid(fmt.Sprintf("image does not decode: %v", err))
	}
	if format == "png" {
		return Artifact{PNG: data}, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Artifact{}, invalid(fmt.Sprintf("png re-encode: %v", err))
	}
	return Artifact{PNG: buf.Bytes()}, nil
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

func sniffImage(data []byte) bool {
	return bytes.HasPrefix(data, pngMagic) || bytes.HasPrefix(data, jpegMagic)
}

func isPrintable(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}
