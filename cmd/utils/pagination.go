package utils

import (
	"net/http"
	"strconv"
)

// PageSize is the fixed number of posts per feed page.
const PageSize = 10

// Page describes one window of a paginated feed.
type Page struct {
    Number     int   `json:"number"`
    Size       int   `json:"size"`
    TotalItems int64 `json:"total_items"`
    TotalPages int   `json:"total_pages"`
    HasNext    bool  `json:"has_next"`
    HasPrev    bool  `json:"has_previous"`
}

// PageNumber reads the ?page= query parameter. Absent or unparsable
// values mean the first page.
func PageNumber(r *http.Request) int {
    page, err := strconv.Atoi(r.URL.Query().Get("page"))
    if err != nil || page < 1 {
        return 1
    }
    return page
}

// Paginate computes the page window for a feed of total items. A request
// past the end clamps to the last page so the remainder is still served.
func Paginate(total int64, requested int) Page {
    totalPages := int((total + PageSize - 1) / PageSize)
    if totalPages < 1 {
        totalPages = 1
    }

    number := requested
    if number < 1 {
        number = 1
    }
    if number > totalPages {
        number = totalPages
    }

    return Page{
        Number:     number,
        Size:       PageSize,
        TotalItems: total,
        TotalPages: totalPages,
        HasNext:    number < totalPages,
        HasPrev:    number > 1,
    }
}

// Offset is the item index where this page starts.
func (p Page) Offset() int {
    return (p.Number - 1) * p.Size
}
