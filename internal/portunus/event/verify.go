package event

import (
	"strings"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

// DecodeVerifyMethod maps a raw currentVerifyMode value onto a
// VerifyMethod by case-insensitive token match. It is total.
func DecodeVerifyMethod(raw string) types.VerifyMethod {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "fp"), strings.Contains(s, "finger"):
		return types.VerifyFingerprint
	case strings.Contains(s, "card"):
		return types.VerifyCard
	case strings.Contains(s, "face"):
		return types.VerifyFace
	default:
		return types.VerifyUnknown
	}
}
