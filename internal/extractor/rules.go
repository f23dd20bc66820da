package extractor

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Rules names every site-specific selector so that markup drift is handled
// in configuration rather than in code.
type Rules struct {
	ListingContainer   string     `yaml:"listing_container"`
	ArticleLinks       string     `yaml:"article_links"`
	ArticleLinkPattern string     `yaml:"article_link_pattern"`
	Title              string     `yaml:"title"`
	Body               string     `yaml:"body"`
	DateRules          []TextRule `yaml:"date_rules"`
	CommentItems       string     `yaml:"comment_items"`
	Message            string     `yaml:"message"`
	CommentDate        TextRule   `yaml:"comment_date"`
	CommentText        string     `yaml:"comment_text"`
	ReplyLists         string     `yaml:"reply_lists"`
	ReplyItems         string     `yaml:"reply_items"`
}

// TextRule selects the first text node matching Selector. With OwnText only
// the element's direct text children are considered; Contains filters text
// nodes by a marker token.
type TextRule struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
	OwnText  bool   `yaml:"own_text"`
	Contains string `yaml:"contains"`
}

// UnmarshalYAML also accepts a bare selector string, read as an own-text
// rule.
func (t *TextRule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = TextRule{Selector: strings.TrimSpace(node.Value), OwnText: true}
		return nil
	}
	type plain TextRule
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = TextRule(p)
	return nil
}

// DefaultRules matches the SPIP markup of lefaso.net.
func DefaultRules() Rules {
	return Rules{
		ListingContainer:   `div[class="col-xs-12 col-sm-12 col-md-8 col-lg-8"]`,
		ArticleLinks:       `a[href]`,
		ArticleLinkPattern: `spip\.php\?article`,
		Title:              `h1[class="entry-title"]`,
		Body:               `div[class*="col-md-8"] p`,
		DateRules: []TextRule{
			{Name: "article-meta", Selector: `div[class*="article-meta"]`},
			{Name: "published-marker", Selector: `div[class*="container"] p`, OwnText: true, Contains: "Publié"},
		},
		CommentItems: `ul[class="forum"] > li`,
		Message:      `div[class*="forum-message"]`,
		CommentDate:  TextRule{Name: "comment-date", Selector: `font`, OwnText: true},
		CommentText:  `div[class="ugccmt-commenttext"]`,
		ReplyLists:   `ul`,
		ReplyItems:   `li`,
	}
}

// LoadRules reads rules from a YAML file; fields left empty keep their
// default value. An empty path returns DefaultRules.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read selectors file: %w", err)
	}
	var override Rules
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Rules{}, fmt.Errorf("decode selectors file: %w", err)
	}
	return rules.merge(override), nil
}

func (r Rules) merge(o Rules) Rules {
	pick := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	pick(&r.ListingContainer, o.ListingContainer)
	pick(&r.ArticleLinks, o.ArticleLinks)
	pick(&r.ArticleLinkPattern, o.ArticleLinkPattern)
	pick(&r.Title, o.Title)
	pick(&r.Body, o.Body)
	pick(&r.CommentItems, o.CommentItems)
	pick(&r.Message, o.Message)
	pick(&r.CommentText, o.CommentText)
	pick(&r.ReplyLists, o.ReplyLists)
	pick(&r.ReplyItems, o.ReplyItems)
	if strings.TrimSpace(o.CommentDate.Selector) != "" {
		r.CommentDate = o.CommentDate
	}
	if len(o.DateRules) > 0 {
		r.DateRules = o.DateRules
	}
	return r
}

// compiledRules holds parsed selectors ready for matching.
type compiledRules struct {
	listingContainer cascadia.Selector
	articleLinks     cascadia.Selector
	articleLink      *regexp.Regexp
	title            cascadia.Selector
	body             cascadia.Selector
	dateRules        []compiledTextRule
	commentItems     cascadia.Selector
	message          cascadia.Selector
	commentDate      compiledTextRule
	commentText      cascadia.Selector
	replyLists       cascadia.Selector
	replyItems       cascadia.Selector
}

type compiledTextRule struct {
	name     string
	sel      cascadia.Selector
	ownText  bool
	contains string
}

func (r Rules) compile() (compiledRules, error) {
	var (
		out  compiledRules
		errs []error
	)
	sel := func(field, expr string) cascadia.Selector {
		s, err := cascadia.Parse(expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s selector %q: %w", field, expr, err))
			return nil
		}
		return cascadia.Selector(s.Match)
	}

	textRule := func(name string, tr TextRule) compiledTextRule {
		return compiledTextRule{
			name:     name,
			sel:      sel(name, tr.Selector),
			ownText:  tr.OwnText,
			contains: tr.Contains,
		}
	}

	out.listingContainer = sel("listing_container", r.ListingContainer)
	out.articleLinks = sel("article_links", r.ArticleLinks)
	out.title = sel("title", r.Title)
	out.body = sel("body", r.Body)
	out.commentItems = sel("comment_items", r.CommentItems)
	out.message = sel("message", r.Message)
	out.commentDate = textRule("comment_date", r.CommentDate)
	out.commentText = sel("comment_text", r.CommentText)
	out.replyLists = sel("reply_lists", r.ReplyLists)
	out.replyItems = sel("reply_items", r.ReplyItems)

	re, err := regexp.Compile(r.ArticleLinkPattern)
	if err != nil {
		errs = append(errs, fmt.Errorf("article_link_pattern %q: %w", r.ArticleLinkPattern, err))
	}
	out.articleLink = re

	if len(r.DateRules) == 0 {
		errs = append(errs, errors.New("at least one date rule is required"))
	}
	for i, dr := range r.DateRules {
		name := dr.Name
		if name == "" {
			name = fmt.Sprintf("date_rules[%d]", i)
		}
		out.dateRules = append(out.dateRules, textRule(name, dr))
	}

	if len(errs) > 0 {
		return compiledRules{}, errors.Join(errs...)
	}
	return out, nil
}
