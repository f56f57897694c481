package retrieval

import (
	"encoding/json"
	"regexp"

	"github.com/tidwall/gjson"
)

// maxExpansionLen caps how much text a single {{...}} token may expand to,
// keeping a runaway upstream field from blowing up a query string.
const maxExpansionLen = 4096

var templateToken = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\[\]]+)\s*\}\}`)

// Interpolate walks a "{{a.b.c}}"-style template against data, resolving
// each token as the dotted path data.a.b.c. Missing paths are left
// literal — the token passes through unresolved — keeping the error domain
// narrow: a bad template never fails a retrieval outright, it just produces
// a query containing the literal placeholder.
func Interpolate(template string, data map[string]interface{}) string {
	raw, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		return template
	}
	doc := string(raw)

	return templateToken.ReplaceAllStringFunc(template, func(tok string) string {
		path := templateToken.FindStringSubmatch(tok)[1]
		result := gjson.Get(doc, "data."+path)
		if !result.Exists() {
			return tok
		}
		s := result.String()
		if len(s) > maxExpansionLen {
			s = s[:maxExpansionLen]
		}
		return s
	})
}
