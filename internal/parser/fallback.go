package parser

import (
	"regexp"
	"strings"

	"github.com/sokinpui/xapply/internal/cdata"
	"github.com/sokinpui/xapply/model"
)

var (
	fileBlockRe = regexp.MustCompile(`(?s)<file>(.*?)</file>`)
	summaryRe   = regexp.MustCompile(`(?s)<file_summary>(.*?)</file_summary>`)
	operationRe = regexp.MustCompile(`(?s)<file_operation>\s*(.*?)\s*</file_operation>`)
	pathRe      = regexp.MustCompile(`(?s)<file_path>\s*(.*?)\s*</file_path>`)
	cdataCodeRe = regexp.MustCompile(`(?s)<file_code>\s*<!\[CDATA\[(.*)\]\]>\s*</file_code>`)
	plainCodeRe = regexp.MustCompile(`(?s)<file_code>(.*?)</file_code>`)
)

// ExtractFallback pulls records out of text field by field, without an XML
// parser. It is only meant for documents that failed to parse; entries
// missing a path, operation or code are skipped as in the regular path.
func (p *Parser) ExtractFallback(text string) []model.FileChange {
	var changes []model.FileChange
	for i, m := range fileBlockRe.FindAllStringSubmatch(text, -1) {
		block := m[1]

		path := firstGroup(pathRe, block)
		op := firstGroup(operationRe, block)
		code, hasCode := fallbackCode(block)
		if path == nil || op == nil || !hasCode {
			p.log.Warnf("degraded extraction: skipping file entry %d", i+1)
			continue
		}

		change := model.FileChange{
			Path:      strings.TrimSpace(*path),
			Operation: model.ParseOperation(*op),
			Code:      code,
		}
		if s := firstGroup(summaryRe, block); s != nil {
			change.Summary = strings.TrimSpace(*s)
		}
		changes = append(changes, change)
	}
	return changes
}

func fallbackCode(block string) (string, bool) {
	if m := cdataCodeRe.FindStringSubmatch(block); m != nil {
		return cdata.Unprotect(m[1]), true
	}
	if m := plainCodeRe.FindStringSubmatch(block); m != nil {
		return m[1], true
	}
	return "", false
}

func firstGroup(re *regexp.Regexp, s string) *string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return &m[1]
}
