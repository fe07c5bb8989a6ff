package ingest

import (
	"html"
	"regexp"
	"strings"
)

// EDGAR filings arrive as a single large HTML document. The extraction here
// deliberately stays regex-based: filings are machine-generated markup with
// no scripting to speak of, and a full DOM parse buys nothing for the
// flat text the splitter needs.
var (
	scriptBlocks   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	noscriptBlocks = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	styleBlocks    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	headBlocks     = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlComments   = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockTags      = regexp.MustCompile(`(?i)</?(p|div|table|tr|h[1-6]|li|ul|ol|section|article)[^>]*>`)
	breakTags      = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	cellCloseTags  = regexp.MustCompile(`(?i)</(td|th)>`)
	allTags        = regexp.MustCompile(`<[^>]+>`)
	spaceRuns      = regexp.MustCompile("[ \t ]+")
	newlineRuns    = regexp.MustCompile(`\n{3,}`)
)

// ExtractText converts filing HTML into plain text suitable for chunking.
// Block-level elements become line breaks and table cells become spaces so
// that numbers stay on the same line as their row labels.
func ExtractText(htmlContent string) string {
	text := scriptBlocks.ReplaceAllString(htmlContent, " ")
	text = noscriptBlocks.ReplaceAllString(text, " ")
	text = styleBlocks.ReplaceAllString(text, " ")
	text = headBlocks.ReplaceAllString(text, " ")
	text = htmlComments.ReplaceAllString(text, " ")

	text = blockTags.ReplaceAllString(text, "\n")
	text = breakTags.ReplaceAllString(text, "\n")
	text = cellCloseTags.ReplaceAllString(text, " ")

	text = allTags.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)

	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
