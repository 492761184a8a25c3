package ussd

import "strings"

// Delimiter joins the fragments the gateway accumulates across turns.
const Delimiter = "*"

// Tokens splits the cumulative dialed string into its ordered fragments.
// The empty string yields no tokens. Splitting never fails.
func Tokens(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, Delimiter)
}

// Latest returns the fragment appended since the previous turn, or "" when
// the caller has not typed anything yet.
func Latest(text string) string {
	toks := Tokens(text)
	if len(toks) == 0 {
		return ""
	}
	return toks[len(toks)-1]
}
