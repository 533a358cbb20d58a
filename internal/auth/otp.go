package auth

import (
	"crypto/rand"
	"math/big"
)

const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateCode returns a random one-time code of length characters drawn from
// digits and lowercase letters.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}

	max := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}
