package listener

import (
	"path"
	"strings"
	"unicode"
)

// ReportName derives the HTML report file name for a story: the story's last
// path element in snake case with a .html suffix. "Sample Story" and
// "SampleStory" both give "sample_story.html". An empty story gives "".
func ReportName(story string) string {
	story = strings.TrimSpace(story)
	if story == "" {
		return ""
	}
	if strings.Contains(story, "/") {
		story = path.Base(strings.TrimRight(story, "/"))
	}
	name := snakeCase(story)
	if name == "" {
		return ""
	}
	return name + ".html"
}

// ReportURL joins the public report root and a report name. Without a name
// the root itself is returned.
func ReportURL(publicURL, reportName string) string {
	if reportName == "" {
		return publicURL
	}
	return strings.TrimSuffix(publicURL, "/") + "/" + strings.TrimPrefix(reportName, "/")
}

func snakeCase(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	pendingSep := false
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingSep = sb.Len() > 0
			continue
		}
		if unicode.IsUpper(r) && i > 0 && sb.Len() > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				pendingSep = true
			}
		}
		if pendingSep {
			sb.WriteByte('_')
			pendingSep = false
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}
