package worker

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/veritas/internal/model"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestParseManifest_HeaderLine(t *testing.T) {
	items, err := ParseManifestString("text\nBreaking: aliens land in Ohio\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Kind != model.KindText || items[0].Input != "Breaking: aliens land in Ohio" {
		t.Errorf("unexpected item: %+v", items[0])
	}
	if items[0].Status != model.StatusPending {
		t.Errorf("expected pending, got %s", items[0].Status)
	}
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []model.BatchItem
	}{
		{
			name:    "mixed kinds in order",
			content: "https://a.example/1\nplain claim\nhttp://b.example/2\n",
			want: []model.BatchItem{
				{Input: "https://a.example/1", Kind: model.KindURL},
				{Input: "plain claim", Kind: model.KindText},
				{Input: "http://b.example/2", Kind: model.KindURL},
			},
		},
		{
			name:    "blank lines and whitespace dropped",
			content: "\n\n   first  \r\n\t\n second\n\n",
			want: []model.BatchItem{
				{Input: "first", Kind: model.KindText},
				{Input: "second", Kind: model.KindText},
			},
		},
		{
			name:    "csv style header",
			content: "URL,Text\nhttps://a.example\n",
			want: []model.BatchItem{
				{Input: "https://a.example", Kind: model.KindURL},
			},
		},
		{
			name:    "url first line is not a header",
			content: "https://example.com/texture\nsecond\n",
			want: []model.BatchItem{
				{Input: "https://example.com/texture", Kind: model.KindURL},
				{Input: "second", Kind: model.KindText},
			},
		},
		{
			name:    "word containing text is not a header",
			content: "Context matters here\n",
			want: []model.BatchItem{
				{Input: "Context matters here", Kind: model.KindText},
			},
		},
		{
			name:    "only first line can be a header",
			content: "claim\ntext\n",
			want: []model.BatchItem{
				{Input: "claim", Kind: model.KindText},
				{Input: "text", Kind: model.KindText},
			},
		},
		{
			name:    "scheme must be a prefix",
			content: "see https://example.com\nftp://example.com\n",
			want: []model.BatchItem{
				{Input: "see https://example.com", Kind: model.KindText},
				{Input: "ftp://example.com", Kind: model.KindText},
			},
		},
		{
			name:    "plural url header",
			content: "URLs\nhttps://a.example\n",
			want: []model.BatchItem{
				{Input: "https://a.example", Kind: model.KindURL},
			},
		},
		{
			name:    "plural text header",
			content: "Texts\nhello\n",
			want: []model.BatchItem{
				{Input: "hello", Kind: model.KindText},
			},
		},
		{
			name:    "column style headers",
			content: "url_list\nhttps://a.example\n",
			want: []model.BatchItem{
				{Input: "https://a.example", Kind: model.KindURL},
			},
		},
		{
			name:    "camel case header",
			content: "urlList;Text_Body\nclaim\n",
			want: []model.BatchItem{
				{Input: "claim", Kind: model.KindText},
			},
		},
		{
			name:    "word starting with text is not a header",
			content: "Texture of the moon is cheese\n",
			want: []model.BatchItem{
				{Input: "Texture of the moon is cheese", Kind: model.KindText},
			},
		},
		{
			name:    "empty upload",
			content: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseManifestString(tt.content)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(items) != len(tt.want) {
				t.Fatalf("expected %d items, got %d: %+v", len(tt.want), len(items), items)
			}
			for i := range items {
				if items[i].Input != tt.want[i].Input || items[i].Kind != tt.want[i].Kind {
					t.Errorf("item %d: expected %+v, got %+v", i, tt.want[i], items[i])
				}
			}
		})
	}
}

func TestParseManifest_LongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	items, err := ParseManifestString(long + "\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || len(items[0].Input) != len(long) {
		t.Error("long line should be kept whole")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestParseManifest_Unreadable(t *testing.T) {
	_, err := ParseManifest(failingReader{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !model.IsFailureKind(err, model.FailureManifest) {
		t.Errorf("expected manifest failure, got %v", err)
	}
}

func TestReadManifestFile(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "m.txt", "url\nhttps://example.com\n")
	items, err := ReadManifestFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Kind != model.KindURL {
		t.Errorf("unexpected items: %+v", items)
	}

	if _, err := ReadManifestFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCheckManifestSize(t *testing.T) {
	items := make([]model.BatchItem, 3)
	if err := CheckManifestSize(items, 0); err != nil {
		t.Errorf("zero limit should disable the check: %v", err)
	}
	if err := CheckManifestSize(items, 3); err != nil {
		t.Errorf("limit equal to size should pass: %v", err)
	}
	if err := CheckManifestSize(items, 2); err == nil {
		t.Error("expected error over limit")
	}
	if err := CheckManifestSize(nil, 10); !model.IsFailureKind(err, model.FailureManifest) {
		t.Errorf("expected manifest failure for empty upload, got %v", err)
	}
}
