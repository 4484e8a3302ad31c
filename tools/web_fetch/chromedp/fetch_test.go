package chromedp

import (
	"strings"
	"testing"
)

const page = `<html><head><title>Leaked Notes</title></head><body>
<article><h1>Leaked Notes</h1>
<p>The operator posted the coordinates of the drop point on a public paste site earlier this week.</p>
<p>Investigators followed the handle across several forums and matched the avatar to a known account.</p>
<p>The archive also contained a token that looked like flag{paste_site} along with several decoys.</p>
</article></body></html>`

func TestExtractReadsArticle(t *testing.T) {
	res := Extract("https://paste.example/n/1", page, 0)
	if res.Status != 200 {
		t.Fatalf("unexpected status %d", res.Status)
	}
	if res.HTMLHash == "" {
		t.Fatalf("expected html hash")
	}
	if !strings.Contains(res.Text, "flag{paste_site}") {
		t.Fatalf("expected article text, got %q", res.Text)
	}
}

func TestExtractTruncatesText(t *testing.T) {
	res := Extract("https://paste.example/n/1", page, 20)
	if len(res.Text) > 20 {
		t.Fatalf("text not truncated: %d chars", len(res.Text))
	}
}
