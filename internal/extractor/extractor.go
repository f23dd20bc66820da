// Package extractor turns fetched HTML into article links (listing pages) or
// article records (article pages) according to a named rule set.
package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/rubric-harvester/internal/domain"
)

// ParseError reports a document that cannot be treated as HTML at all.
// Missing fields inside a valid document are never errors.
type ParseError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extractor is stateless after construction and safe for concurrent use.
type Extractor struct {
	rules compiledRules
}

// New compiles rules. Invalid selectors or patterns are reported together.
func New(rules Rules) (*Extractor, error) {
	compiled, err := rules.compile()
	if err != nil {
		return nil, fmt.Errorf("compile extraction rules: %w", err)
	}
	return &Extractor{rules: compiled}, nil
}

// ExtractLinks returns the article links of a listing page in document order,
// resolved to absolute URLs. Duplicates are kept; the frontier dedups.
func (e *Extractor) ExtractLinks(body []byte, pageURL string) ([]string, error) {
	doc, err := parse(body, pageURL)
	if err != nil {
		return nil, err
	}
	base := resolveBase(doc, pageURL)

	links := make([]string, 0)
	doc.FindMatcher(e.rules.listingContainer).FindMatcher(e.rules.articleLinks).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !e.rules.articleLink.MatchString(href) {
			return
		}
		links = append(links, absolute(base, href))
	})
	return links, nil
}

// ExtractArticle fills title, publication date, body and comments. URL,
// rubric and page number are left to the caller.
func (e *Extractor) ExtractArticle(body []byte, pageURL string) (domain.ArticleRecord, error) {
	doc, err := parse(body, pageURL)
	if err != nil {
		return domain.ArticleRecord{}, err
	}

	record := domain.ArticleRecord{
		Title:           firstOwnText(doc.FindMatcher(e.rules.title), ""),
		PublicationDate: e.publicationDate(doc),
		Body:            e.paragraphs(doc),
		Comments:        e.comments(doc),
	}
	return record.Normalize(), nil
}

func (e *Extractor) paragraphs(doc *goquery.Document) []string {
	out := make([]string, 0)
	doc.FindMatcher(e.rules.body).Each(func(_ int, p *goquery.Selection) {
		out = append(out, ownTexts(p)...)
	})
	return out
}

// publicationDate tries each date rule in order and keeps the first hit.
func (e *Extractor) publicationDate(doc *goquery.Document) *string {
	for _, rule := range e.rules.dateRules {
		if found := rule.first(doc.FindMatcher(rule.sel)); found != nil {
			return found
		}
	}
	return nil
}

func (e *Extractor) comments(doc *goquery.Document) []domain.Comment {
	out := make([]domain.Comment, 0)
	doc.FindMatcher(e.rules.commentItems).Each(func(_ int, item *goquery.Selection) {
		date, text := e.message(item)
		comment := domain.Comment{Date: date, Text: text, Replies: make([]domain.Reply, 0)}

		item.ChildrenMatcher(e.rules.replyLists).FindMatcher(e.rules.replyItems).Each(func(_ int, reply *goquery.Selection) {
			rDate, rText := e.message(reply)
			comment.Replies = append(comment.Replies, domain.Reply{Date: rDate, Text: rText})
		})
		out = append(out, comment)
	})
	return out
}

// message reads the date and text of the message block directly under item.
func (e *Extractor) message(item *goquery.Selection) (*string, *string) {
	msg := item.ChildrenMatcher(e.rules.message).First()
	if msg.Length() == 0 {
		return nil, nil
	}
	date := e.rules.commentDate.first(msg.FindMatcher(e.rules.commentDate.sel))
	text := joinedText(msg.FindMatcher(e.rules.commentText))
	return date, text
}

func parse(body []byte, pageURL string) (*goquery.Document, error) {
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		return nil, &ParseError{URL: pageURL, Reason: "empty body"}
	case bytes.IndexByte(trimmed, 0) >= 0:
		return nil, &ParseError{URL: pageURL, Reason: "binary content"}
	case bytes.IndexByte(trimmed, '<') < 0:
		return nil, &ParseError{URL: pageURL, Reason: "no markup"}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Reason: "html parse", Err: err}
	}
	return doc, nil
}

// resolveBase honours <base href> when present.
func resolveBase(doc *goquery.Document, pageURL string) *url.URL {
	page, err := url.Parse(pageURL)
	if err != nil {
		page = &url.URL{}
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := url.Parse(strings.TrimSpace(href)); err == nil {
			return page.ResolveReference(b)
		}
	}
	return page
}

func absolute(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// ownTexts returns the trimmed, non-blank direct text children of every
// element in sel.
func ownTexts(sel *goquery.Selection) []string {
	var out []string
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) != "#text" {
			return
		}
		if text := strings.TrimSpace(c.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// descendantTexts returns every trimmed, non-blank text node below sel in
// document order.
func descendantTexts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if text := strings.TrimSpace(c.Text()); text != "" {
					out = append(out, text)
				}
				return
			}
			out = append(out, descendantTexts(c)...)
		})
	})
	return out
}

// first applies the rule's text mode and marker to the matched elements.
func (r compiledTextRule) first(matches *goquery.Selection) *string {
	if r.ownText {
		return firstOwnText(matches, r.contains)
	}
	return firstDescendantText(matches, r.contains)
}

func firstOwnText(sel *goquery.Selection, contains string) *string {
	var found *string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = firstMatching(ownTexts(s), contains)
		return found == nil
	})
	return found
}

func firstDescendantText(sel *goquery.Selection, contains string) *string {
	return firstMatching(descendantTexts(sel), contains)
}

func firstMatching(texts []string, contains string) *string {
	for _, text := range texts {
		if contains == "" || strings.Contains(text, contains) {
			t := text
			return &t
		}
	}
	return nil
}

func joinedText(sel *goquery.Selection) *string {
	texts := descendantTexts(sel)
	if len(texts) == 0 {
		return nil
	}
	joined := strings.Join(texts, " ")
	return &joined
}
