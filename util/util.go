package util

import (
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"time"
)

var letterRunes = []rune("abcdefghijklmnopqrstuvwxyz")

func Randstring(n int) string {
	rand := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]rune, n)
	for i := range b {
		b[i] = letterRunes[rand.Intn(len(letterRunes))]
	}
	return string(b)
}

// Returns the last line of out that is not blank, or "" if there is none.
func LastNonEmptyLine(out []byte) string {
	lines := strings.Split(string(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line
		}
	}
	return ""
}

// Renders names as a sorted, quoted, comma-separated list for help text and errors.
func ExplainNames[T ~string](names []T) string {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	quoted := make([]string, 0, len(sorted))
	for _, n := range sorted {
		quoted = append(quoted, fmt.Sprintf("%q", string(n)))
	}
	return strings.Join(quoted, ", ")
}
