package room

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	codeMin = 100000
	codeMax = 999999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// CodeSource produces candidate room codes.
type CodeSource func() (string, error)

// randomCode draws a 6-digit code uniformly from 100000-999999.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// ValidCode reports whether s has the shape of a room code.
func ValidCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= codeMin && n <= codeMax
}
