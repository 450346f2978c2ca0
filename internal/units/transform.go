package units

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Transform turns a target into a derived payload. It returns an error
// when the input is not in the expected encoding.
type Transform func(string) (string, error)

var (
	base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/\-_\s]+={0,2}\s*$`)
	hexPattern    = regexp.MustCompile(`^(0x)?([0-9A-Fa-f]{2}[\s:]?)+$`)
)

var transforms = map[string]Transform{
	"base64":    decodeBase64,
	"hex":       decodeHex,
	"urldecode": decodeURL,
	"reverse":   reverse,
	"rot13":     func(s string) (string, error) { return rotate(s, 13), nil },
}

// TransformNames returns the names usable in a decode definition.
func TransformNames() []string {
	names := make([]string, 0, len(transforms))
	for name := range transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupTransform(name string) (Transform, bool) {
	t, ok := transforms[name]
	return t, ok
}

func decodeBase64(s string) (string, error) {
	clean := strings.Join(strings.Fields(s), "")
	if clean == "" {
		return "", fmt.Errorf("empty input")
	}
	encodings := []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if out, err := enc.DecodeString(clean); err == nil {
			return printable(out)
		}
	}
	return "", fmt.Errorf("not base64")
}

func decodeHex(s string) (string, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	clean = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(clean)
	out, err := hex.DecodeString(clean)
	if err != nil {
		return "", err
	}
	return printable(out)
}

func decodeURL(s string) (string, error) {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return "", err
	}
	if out == s {
		return "", fmt.Errorf("nothing to decode")
	}
	return out, nil
}

func reverse(s string) (string, error) {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r), nil
}

// rotate shifts ASCII letters by n places, leaving everything else alone.
func rotate(s string, n int) string {
	n = ((n % 26) + 26) % 26
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+rune(n))%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+rune(n))%26
		}
		return r
	}, s)
}

// printable rejects decoded bytes that are mostly binary noise.
func printable(b []byte) (string, error) {
	if len(b) == 0 || !utf8.Valid(b) {
		return "", fmt.Errorf("decoded data is not text")
	}
	var bad int
	for _, r := range string(b) {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			bad++
		}
	}
	if bad*10 > len(b) {
		return "", fmt.Errorf("decoded data is not text")
	}
	return string(b), nil
}

// printableRuns returns runs of printable ASCII at least min bytes long.
func printableRuns(data []byte, min int) []string {
	var runs []string
	start := -1
	for i, c := range data {
		if c >= 0x20 && c < 0x7f || c == '\t' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= min {
			runs = append(runs, string(data[start:i]))
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= min {
		runs = append(runs, string(data[start:]))
	}
	return runs
}
