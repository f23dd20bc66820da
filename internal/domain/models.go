package domain

// Domain contains core models shared by the frontier, extractor, crawler and sinks.

// Rubric is a topical section of the target site, seeded once per run.
type Rubric struct {
	ID   string
	Name string
	URL  string
}

// RequestKind tells the crawler which extraction mode applies to a fetched page.
type RequestKind string

const (
	KindListing RequestKind = "listing"
	KindArticle RequestKind = "article"
)

// Request is a unit of crawl work. Listing requests come from seeding,
// article requests from links discovered on listing pages.
type Request struct {
	Kind     RequestKind
	URL      string
	RubricID string
	PageNum  int
}

// ArticleRecord is the terminal output for one article. Its JSON shape is
// consumed by downstream analytics and must stay stable.
type ArticleRecord struct {
	Title           *string   `json:"title"`
	PublicationDate *string   `json:"date_publication"`
	Body            []string  `json:"post"`
	URL             string    `json:"url"`
	RubricID        string    `json:"rubrique_id"`
	PageNum         int       `json:"page_num"`
	Comments        []Comment `json:"comments"`
}

// Comment is a top-level entry of an article's comment thread.
type Comment struct {
	Date    *string `json:"date"`
	Text    *string `json:"text"`
	Replies []Reply `json:"replies"`
}

// Reply is an answer under a Comment. Deeper reply chains are flattened into
// the parent comment's list in document order.
type Reply struct {
	Date *string `json:"date"`
	Text *string `json:"text"`
}

// Normalize replaces nil slices with empty ones so that the record always
// serializes `post`, `comments` and `replies` as arrays.
func (r ArticleRecord) Normalize() ArticleRecord {
	if r.Body == nil {
		r.Body = []string{}
	}
	if r.Comments == nil {
		r.Comments = []Comment{}
	}
	for i := range r.Comments {
		if r.Comments[i].Replies == nil {
			r.Comments[i].Replies = []Reply{}
		}
	}
	return r
}
