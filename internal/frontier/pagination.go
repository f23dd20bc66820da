package frontier

import (
	"fmt"
	"strings"
)

const (
	offsetParam        = "debut_articles"
	paginationFragment = "pagination_articles"
)

// ListingURL derives the URL of page `page` of a rubric listing. Page 1 is
// the rubric URL itself; later pages append the article offset
// (page-1)*pageSize as a query parameter. The base query is kept verbatim
// because SPIP rubric URLs use value-less keys such as `?rubrique4`.
func ListingURL(base string, page, pageSize int) string {
	if page <= 1 {
		return base
	}
	if frag := strings.Index(base, "#"); frag >= 0 {
		base = base[:frag]
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	return fmt.Sprintf("%s%s%s=%d#%s", base, sep, offsetParam, Offset(page, pageSize), paginationFragment)
}

// Offset is the number of articles preceding page `page`.
func Offset(page, pageSize int) int {
	if page <= 1 {
		return 0
	}
	return (page - 1) * pageSize
}
