package models

// PaginatedResult is the canonical response of a search.
type PaginatedResult struct {
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalCount int      `json:"total_count"`
	PageCount  int      `json:"page_count"`
	NextPage   *int     `json:"next_page"`
	PrevPage   *int     `json:"prev_page"`
	Data       []*Movie `json:"data"`
}
