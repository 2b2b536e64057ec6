package audit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")
var pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")

// Join appends one RFC 6901 segment to a JSON Pointer.
func Join(base string, segment any) string {
	var s string
	switch v := segment.(type) {
	case string:
		s = v
	case int:
		s = strconv.Itoa(v)
	default:
		s = fmt.Sprint(v)
	}
	return base + "/" + pointerEscaper.Replace(s)
}

// Split decodes a JSON Pointer into its unescaped segments.
func Split(pointer string) []string {
	if pointer == "" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, p := range parts {
		parts[i] = pointerUnescaper.Replace(p)
	}
	return parts
}

// CollectLeafPaths returns the JSON Pointer of every scalar or null leaf in body,
// in document order. Empty objects and arrays contribute no path.
func CollectLeafPaths(body []byte) []string {
	if !gjson.ValidBytes(body) {
		return nil
	}
	var paths []string
	walkLeaves(gjson.ParseBytes(body), "", &paths)
	return paths
}

func walkLeaves(v gjson.Result, path string, out *[]string) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			walkLeaves(value, Join(path, key.String()), out)
			return true
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, value gjson.Result) bool {
			walkLeaves(value, Join(path, i), out)
			i++
			return true
		})
	default:
		*out = append(*out, path)
	}
}
