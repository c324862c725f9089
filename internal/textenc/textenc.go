// Package textenc isolates the encoding conversions spec.md §9 calls out as
// "scattered throughout logging" in the donor design: GBK→UTF-8 re-encoding
// of broker error strings, and CSV field sanitizing for the append-only
// time_spend.log (spec.md §6: "commas, CR, and LF are replaced with spaces").
package textenc

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// SanitizeCSVField replaces comma, CR and LF with a single space so the
// field is safe to embed in a comma-separated, newline-terminated log line.
func SanitizeCSVField(s string) string {
	replacer := strings.NewReplacer(
		",", " ",
		"\r", " ",
		"\n", " ",
	)
	return replacer.Replace(s)
}

// DecodeLocalCodePage re-encodes a broker error string to UTF-8 if it looks
// like GBK (the local code page used by the mainland brokerage gateway this
// agent talks to). Valid UTF-8 input is returned unchanged.
func DecodeLocalCodePage(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}
