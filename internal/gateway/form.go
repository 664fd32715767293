package gateway

import (
	"net/url"
	"sort"
	"strings"
)

// redirectURLKey is kept verbatim: PAYONE sends it already usable and decoding
// would corrupt its own query string.
const redirectURLKey = "redirecturl"

// ParseFormBody decodes a PAYONE body of key=value pairs separated by '&' or
// newlines. In a body with newlines a redirecturl line is taken whole, since
// its query string carries '&' of its own. Pairs without '=' are skipped.
func ParseFormBody(body string) map[string]string {
	values := make(map[string]string)
	lineOriented := strings.Contains(body, "\n")

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if lineOriented && strings.HasPrefix(strings.TrimSpace(line), redirectURLKey+"=") {
			addPair(values, line)
			continue
		}
		for _, pair := range strings.Split(line, "&") {
			addPair(values, pair)
		}
	}

	return values
}

func addPair(values map[string]string, pair string) {
	idx := strings.Index(pair, "=")
	if idx <= 0 {
		return
	}

	key := strings.TrimSpace(pair[:idx])
	value := pair[idx+1:]
	if key != redirectURLKey {
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
	}
	values[key] = value
}

// EncodeForm renders params as an application/x-www-form-urlencoded body with
// sorted keys.
func EncodeForm(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
