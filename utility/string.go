package utility

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ToFloat converts a sampled value string to a float64, zero on failure.
func ToFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// NormalizeTag reduces an RFID tag to its canonical form.
func NormalizeTag(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func NewUUID() string {
	return uuid.New().String()
}
