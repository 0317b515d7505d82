package search

import (
	"regexp"
	"strings"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// htmlEntities 需要解码的实体最小集合。
var htmlEntities = [][2]string{
	{"&amp;", "&"},
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", `"`},
	{"&#39;", "'"},
	{"&nbsp;", " "},
}

// cleanHTML 去除 HTML 标签、解码常见实体并折叠空白。
func cleanHTML(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	for _, pair := range htmlEntities {
		text = strings.ReplaceAll(text, pair[0], pair[1])
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
