package credit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultCouponCodeLength is the length of generated coupon codes.
const DefaultCouponCodeLength = 8

// GenerateCouponCode returns a random upper-case hex code of the given
// length. Codes are not stored; a redemption row is written on first use.
func GenerateCouponCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCouponCodeLength
	}
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf))[:length], nil
}
