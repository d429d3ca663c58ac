// Package receipt renders the scannable part of a purchaser's receipt.
// Rendering happens after the reservation has committed and can be
// retried at any time because it only depends on stored data.
package receipt

import (
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 320

// ErrEmptyPayload is returned when there is nothing to encode.
var ErrEmptyPayload = errors.New("receipt: empty payload")

// PNG encodes payload as a QR code image.  Medium error correction keeps
// codes readable on cracked phone screens without growing them much.
func PNG(payload []byte, size int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(string(payload), qrcode.Medium, size)
}
