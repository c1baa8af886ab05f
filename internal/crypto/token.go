package crypto

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/awclaim/internal/model"
)

const (
	tokenPrefix  = "AWVF"
	tokenLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	tokenDigits  = "0123456789"
)

// NewSessionToken returns a token shaped AWVF-YYYY-XXXX-NNNN-XXXX for the year of now.
func NewSessionToken(now time.Time) (model.SessionToken, error) {
	var b strings.Builder
	b.WriteString(tokenPrefix)
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(now.UTC().Year()))
	for _, alphabet := range []string{tokenLetters, tokenDigits, tokenLetters} {
		b.WriteByte('-')
		for i := 0; i < 4; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return "", err
			}
			b.WriteByte(alphabet[n.Int64()])
		}
	}
	return model.SessionToken(b.String()), nil
}
