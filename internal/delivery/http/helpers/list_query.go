package helpers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"guestlist/internal/domain"
)

// PageLimits bounds the page_size a list endpoint accepts.
type PageLimits struct {
	Default int
	Max     int
}

var (
	// ParticipantPages sizes the guest list, which organizers page through a roster at a time.
	ParticipantPages = PageLimits{Default: 50, Max: 200}
	ActivityPages    = PageLimits{Default: 20, Max: 100}
)

// Parse reads page and page_size. Missing or malformed values fall back to page 1 and
// l.Default, and page_size is capped at l.Max.
func (l PageLimits) Parse(r *http.Request) domain.PaginationParams {
	q := r.URL.Query()
	params := domain.PaginationParams{Page: 1, PageSize: l.Default}
	if v, ok := positiveInt(q.Get("page")); ok {
		params.Page = v
	}
	if v, ok := positiveInt(q.Get("page_size")); ok {
		params.PageSize = min(v, l.Max)
	}
	return params
}

func positiveInt(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

// ParseParticipantFilter reads status, category and search. Status may be repeated or
// comma-separated and is matched case-insensitively; an unknown status is an error.
func ParseParticipantFilter(r *http.Request) (domain.ParticipantFilter, error) {
	q := r.URL.Query()
	filter := domain.ParticipantFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("search")),
	}
	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			st := domain.ParticipantStatus(part)
			if !st.Valid() {
				return domain.ParticipantFilter{}, fmt.Errorf("unknown status %q", part)
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	return filter, nil
}

// PaginationMeta is the pagination block of list responses.
// swagger:model PaginationMeta
type PaginationMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPaginationMeta describes the page params selected out of total rows.
func NewPaginationMeta(params domain.PaginationParams, total int) PaginationMeta {
	return PaginationMeta{
		Page:       params.Page,
		PageSize:   params.PageSize,
		Total:      total,
		TotalPages: params.Pages(total),
	}
}
