package attendee

import (
	"crypto/rand"
	"math/big"
)

const (
	barcodeMin  = 100000000000
	barcodeSpan = 900000000000
)

// NewBarcode returns a random 12-digit numeric token.
func NewBarcode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(barcodeSpan))
	if err != nil {
		return "", err
	}
	return n.Add(n, big.NewInt(barcodeMin)).String(), nil
}
