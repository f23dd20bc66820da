package extractor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const listingPage = `<html><body>
<div class="col-xs-12 col-sm-12 col-md-8 col-lg-8">
  <a href="spip.php?article101">Premier</a>
  <a href="https://lefaso.net/spip.php?article102#forum">Second</a>
  <a href="spip.php?rubrique4&debut_articles=20">Suivant</a>
  <a href="spip.php?article101">Premier encore</a>
</div>
<div class="sidebar"><a href="spip.php?article999">Ailleurs</a></div>
</body></html>`

const articlePage = `<html><body>
<div class="container">
  <h1 class="entry-title">  Titre de l'article  </h1>
  <div class="article-meta"><span> </span> mardi 5 mars 2024 </div>
  <div class="col-md-8">
    <p>Premier paragraphe.</p>
    <p>   </p>
    <p>Second <b>gras</b> suite.</p>
  </div>
</div>
<ul class="forum">
  <li>
    <div class="forum-message"><font>1er mars 2024</font><div class="ugccmt-commenttext"><p>Bravo</p><p> à tous </p></div></div>
    <ul>
      <li><div class="forum-message"><font>2 mars</font><div class="ugccmt-commenttext">R1a</div></div>
        <ul><li><div class="forum-message"><font>3 mars</font><div class="ugccmt-commenttext">R1b</div></div></li></ul>
      </li>
    </ul>
  </li>
  <li>
    <div class="forum-message"><div class="ugccmt-commenttext">C2</div></div>
    <ul><li><div class="forum-message"><font>4 mars</font><div class="ugccmt-commenttext">R2a</div></div></li></ul>
  </li>
</ul>
</body></html>`

func newDefault(t *testing.T) *Extractor {
	t.Helper()
	ex, err := New(DefaultRules())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ex
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestExtractLinksKeepsOrderAndResolves(t *testing.T) {
	ex := newDefault(t)
	links, err := ex.ExtractLinks([]byte(listingPage), "https://lefaso.net/spip.php?rubrique4")
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	want := []string{
		"https://lefaso.net/spip.php?article101",
		"https://lefaso.net/spip.php?article102#forum",
		"https://lefaso.net/spip.php?article101",
	}
	if !reflect.DeepEqual(links, want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
}

func TestExtractLinksHonoursBaseHref(t *testing.T) {
	ex := newDefault(t)
	page := `<html><head><base href="https://mirror.example/news/"></head><body>
<div class="col-xs-12 col-sm-12 col-md-8 col-lg-8"><a href="spip.php?article7">x</a></div></body></html>`
	links, err := ex.ExtractLinks([]byte(page), "https://lefaso.net/spip.php?rubrique4")
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(links) != 1 || links[0] != "https://mirror.example/news/spip.php?article7" {
		t.Fatalf("unexpected links %v", links)
	}
}

func TestExtractLinksWithoutContainer(t *testing.T) {
	ex := newDefault(t)
	links, err := ex.ExtractLinks([]byte(`<html><body><a href="spip.php?article1">x</a></body></html>`), "https://lefaso.net/")
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if links == nil || len(links) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", links)
	}
}

func TestExtractArticleFields(t *testing.T) {
	ex := newDefault(t)
	rec, err := ex.ExtractArticle([]byte(articlePage), "https://lefaso.net/spip.php?article101")
	if err != nil {
		t.Fatalf("ExtractArticle: %v", err)
	}
	if deref(rec.Title) != "Titre de l'article" {
		t.Fatalf("title = %q", deref(rec.Title))
	}
	if deref(rec.PublicationDate) != "mardi 5 mars 2024" {
		t.Fatalf("date = %q", deref(rec.PublicationDate))
	}
	wantBody := []string{"Premier paragraphe.", "Second", "suite."}
	if !reflect.DeepEqual(rec.Body, wantBody) {
		t.Fatalf("body = %v, want %v", rec.Body, wantBody)
	}
}

func TestExtractArticleCommentsAndReplies(t *testing.T) {
	ex := newDefault(t)
	rec, err := ex.ExtractArticle([]byte(articlePage), "https://lefaso.net/spip.php?article101")
	if err != nil {
		t.Fatalf("ExtractArticle: %v", err)
	}
	if len(rec.Comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(rec.Comments))
	}

	c1, c2 := rec.Comments[0], rec.Comments[1]
	if deref(c1.Date) != "1er mars 2024" || deref(c1.Text) != "Bravo à tous" {
		t.Fatalf("c1 = %q / %q", deref(c1.Date), deref(c1.Text))
	}
	if len(c1.Replies) != 2 || deref(c1.Replies[0].Text) != "R1a" || deref(c1.Replies[1].Text) != "R1b" {
		t.Fatalf("c1 replies out of order: %+v", c1.Replies)
	}
	if deref(c1.Replies[1].Date) != "3 mars" {
		t.Fatalf("nested reply date = %q", deref(c1.Replies[1].Date))
	}

	if c2.Date != nil || deref(c2.Text) != "C2" {
		t.Fatalf("c2 = %q / %q", deref(c2.Date), deref(c2.Text))
	}
	if len(c2.Replies) != 1 || deref(c2.Replies[0].Text) != "R2a" {
		t.Fatalf("c2 replies = %+v", c2.Replies)
	}
}

func TestExtractArticleDateFallback(t *testing.T) {
	ex := newDefault(t)
	page := `<html><body><div class="container">
<h1 class="entry-title">T</h1>
<p>Par la rédaction</p>
<p>Publié le 3 mars 2024</p>
</div></body></html>`
	rec, err := ex.ExtractArticle([]byte(page), "https://lefaso.net/spip.php?article5")
	if err != nil {
		t.Fatalf("ExtractArticle: %v", err)
	}
	if deref(rec.PublicationDate) != "Publié le 3 mars 2024" {
		t.Fatalf("date = %q", deref(rec.PublicationDate))
	}
}

func TestExtractArticleMissingFieldsAreNull(t *testing.T) {
	ex := newDefault(t)
	rec, err := ex.ExtractArticle([]byte(`<html><body><div>rien</div></body></html>`), "https://lefaso.net/spip.php?article6")
	if err != nil {
		t.Fatalf("ExtractArticle: %v", err)
	}
	if rec.Title != nil || rec.PublicationDate != nil {
		t.Fatalf("expected null title and date, got %q / %q", deref(rec.Title), deref(rec.PublicationDate))
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"title":null,"date_publication":null,"post":[],"url":"","rubrique_id":"","page_num":0,"comments":[]}`
	if string(raw) != want {
		t.Fatalf("json = %s", raw)
	}
}

func TestExtractArticleIsDeterministic(t *testing.T) {
	ex := newDefault(t)
	first, err := ex.ExtractArticle([]byte(articlePage), "https://lefaso.net/spip.php?article101")
	if err != nil {
		t.Fatalf("ExtractArticle: %v", err)
	}
	second, err := ex.ExtractArticle([]byte(articlePage), "https://lefaso.net/spip.php?article101")
	if err != nil {
		t.Fatalf("ExtractArticle: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("outputs differ:\n%s\n%s", a, b)
	}
}

func TestParseErrors(t *testing.T) {
	ex := newDefault(t)
	cases := map[string][]byte{
		"empty":   []byte("   \n"),
		"binary":  []byte("<p>\x00\x01</p>"),
		"nomarkp": []byte("just some text"),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ex.ExtractArticle(body, "https://lefaso.net/x")
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if _, err := ex.ExtractLinks(body, "https://lefaso.net/x"); !errors.As(err, &perr) {
				t.Fatalf("links: expected ParseError, got %v", err)
			}
		})
	}
}

func TestLoadRulesOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	content := "title: h2.headline\ndate_rules:\n  - name: time\n    selector: time\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules.Title != "h2.headline" {
		t.Fatalf("title rule = %q", rules.Title)
	}
	if rules.Body != DefaultRules().Body {
		t.Fatalf("body rule should keep default, got %q", rules.Body)
	}
	if len(rules.DateRules) != 1 || rules.DateRules[0].Selector != "time" {
		t.Fatalf("date rules = %+v", rules.DateRules)
	}

	ex, err := New(rules)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec, err := ex.ExtractArticle([]byte(`<html><body><h2 class="headline">H</h2><time>2024-03-05</time></body></html>`), "https://x/")
	if err != nil {
		t.Fatalf("ExtractArticle: %v", err)
	}
	if deref(rec.Title) != "H" || deref(rec.PublicationDate) != "2024-03-05" {
		t.Fatalf("unexpected record %q / %q", deref(rec.Title), deref(rec.PublicationDate))
	}
}

func TestLoadRulesEmptyPathReturnsDefaults(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if !reflect.DeepEqual(rules, DefaultRules()) {
		t.Fatalf("expected defaults")
	}
}

func TestNewRejectsInvalidRules(t *testing.T) {
	rules := DefaultRules()
	rules.Title = "h1["
	rules.ArticleLinkPattern = "("
	if _, err := New(rules); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestCommentDateReadsOwnTextOfFont(t *testing.T) {
	page := `<html><body><ul class="forum">
  <li><div class="forum-message"><font><b>Anonyme</b> 6 mars 2024</font><div class="ugccmt-commenttext">Oui</div></div></li>
  <li><div class="forum-message"><font><b>Seulement gras</b></font><div class="ugccmt-commenttext">Non</div></div></li>
</ul></body></html>`

	rec, err := newDefault(t).ExtractArticle([]byte(page), "https://lefaso.net/spip.php?article7")
	if err != nil {
		t.Fatalf("ExtractArticle: %v", err)
	}
	if len(rec.Comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(rec.Comments))
	}
	if got := deref(rec.Comments[0].Date); got != "6 mars 2024" {
		t.Fatalf("date must skip nested markup, got %q", got)
	}
	if rec.Comments[1].Date != nil {
		t.Fatalf("font without own text must give a null date, got %q", deref(rec.Comments[1].Date))
	}
}

func TestLoadRulesCommentDateAndAnchorOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	content := "article_links: 'a.lien[href]'\ncomment_date:\n  selector: span.date\n  own_text: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules.CommentDate.Selector != "span.date" || rules.CommentDate.OwnText {
		t.Fatalf("comment_date rule = %+v", rules.CommentDate)
	}
	ex, err := New(rules)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	page := `<html><body><div class="col-xs-12 col-sm-12 col-md-8 col-lg-8">
  <a href="spip.php?article1">ignoré</a>
  <a class="lien" href="spip.php?article2">gardé</a>
</div></body></html>`
	links, err := ex.ExtractLinks([]byte(page), "https://lefaso.net/spip.php?rubrique4")
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if !reflect.DeepEqual(links, []string{"https://lefaso.net/spip.php?article2"}) {
		t.Fatalf("links = %v", links)
	}

	shorthand := filepath.Join(t.TempDir(), "short.yaml")
	if err := os.WriteFile(shorthand, []byte("comment_date: em\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err = LoadRules(shorthand)
	if err != nil {
		t.Fatalf("LoadRules shorthand: %v", err)
	}
	if rules.CommentDate.Selector != "em" || !rules.CommentDate.OwnText {
		t.Fatalf("bare selector must become an own-text rule, got %+v", rules.CommentDate)
	}
}
