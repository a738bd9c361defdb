package listener

import (
	"strings"

	"github.com/samber/lo"
)

// NormalizeKeys trims each issue key, strips one leading '#', drops empty
// keys and removes duplicates, keeping first-seen order.
func NormalizeKeys(keys []string) []string {
	normalized := lo.FilterMap(keys, func(key string, _ int) (string, bool) {
		key = strings.TrimSpace(key)
		key = strings.TrimSpace(strings.TrimPrefix(key, "#"))
		return key, key != ""
	})
	return lo.Uniq(normalized)
}
