package tempadmin

import (
	"crypto/rand"
	"math/big"
)

const (
	passwordLength = 16

	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*"
	allChars    = lowerChars + upperChars + digitChars + symbolChars
)

// GeneratePassword returns a random 16 characters password containing at least one lowercase letter,
// one uppercase letter, one digit and one symbol.
// It panics if the system's secure random source fails.
func GeneratePassword() string {
	pwd := make([]byte, 0, passwordLength)
	for _, set := range []string{lowerChars, upperChars, digitChars, symbolChars} {
		pwd = append(pwd, set[randIntn(len(set))])
	}
	for len(pwd) < passwordLength {
		pwd = append(pwd, allChars[randIntn(len(allChars))])
	}

	// Fisher-Yates shuffle, so that the mandatory characters are not always first
	for i := len(pwd) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		pwd[i], pwd[j] = pwd[j], pwd[i]
	}
	return string(pwd)
}

func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("tempadmin: reading random source: " + err.Error())
	}
	return int(v.Int64())
}
