package mediatool

import "strings"

// ExpandArgs replaces {name} placeholders in every argument. Unknown
// placeholders are left untouched.
func ExpandArgs(args []string, values map[string]string) []string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{"+key+"}", value)
	}
	replacer := strings.NewReplacer(pairs...)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = replacer.Replace(arg)
	}
	return out
}
