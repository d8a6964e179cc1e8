package worker

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/ppiankov/veritas/internal/model"
)

// maxManifestLine bounds a single manifest line (long text items are allowed)
const maxManifestLine = 1 << 20

// ParseManifest turns a line-delimited upload into ordered pending items.
//
// Blank lines are dropped. When the first non-blank line carries the token
// "url" or "text" it is treated as a header. Lines starting with http:// or https://
// become URL items, everything else is text.
func ParseManifest(r io.Reader) ([]model.BatchItem, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxManifestLine)

	var items []model.BatchItem
	first := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if first {
			first = false
			if isHeader(line) {
				continue
			}
		}

		items = append(items, NewItem(line))
	}

	if err := scanner.Err(); err != nil {
		return nil, &model.Failure{Kind: model.FailureManifest, Reason: "unreadable upload", Err: fmt.Errorf("scan manifest: %w", err)}
	}

	return items, nil
}

// NewItem builds a pending item for one trimmed input
func NewItem(input string) model.BatchItem {
	input = strings.TrimSpace(input)
	return model.BatchItem{
		Input:  input,
		Kind:   classifyKind(input),
		Status: model.StatusPending,
	}
}

// ParseManifestString is ParseManifest over an in-memory upload
func ParseManifestString(content string) ([]model.BatchItem, error) {
	return ParseManifest(strings.NewReader(content))
}

// ReadManifestFile reads and parses a manifest from disk
func ReadManifestFile(filePath string) ([]model.BatchItem, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &model.Failure{Kind: model.FailureManifest, Reason: "cannot open " + filePath, Err: fmt.Errorf("open file: %w", err)}
	}
	defer func() { _ = file.Close() }()

	return ParseManifest(file)
}

// CheckManifestSize rejects empty manifests and manifests over the
// configured item limit
func CheckManifestSize(items []model.BatchItem, maxItems int) error {
	if len(items) == 0 {
		return &model.Failure{Kind: model.FailureManifest, Reason: "no items found"}
	}
	if maxItems > 0 && len(items) > maxItems {
		return &model.Failure{
			Kind:   model.FailureManifest,
			Reason: fmt.Sprintf("%d items exceeds the limit of %d", len(items), maxItems),
		}
	}
	return nil
}

// isHeader matches column names built on "url" or "text": url, urls,
// url_list, urlList, text, texts, text_body. Words that merely contain the
// letters, such as "context" or "texture", do not count. A line that is
// itself a URL is never a header.
func isHeader(line string) bool {
	if classifyKind(line) == model.KindURL {
		return false
	}
	tokens := strings.FieldsFunc(strings.ToLower(line), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "url") || tok == "text" || tok == "texts" {
			return true
		}
	}
	return false
}

func classifyKind(line string) model.ItemKind {
	if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
		return model.KindURL
	}
	return model.KindText
}
