package trackerr

const (
	summaryNetwork   = "Network issues detected. Check your connection and try again."
	summaryRateLimit = "Rate limits exceeded. Please wait before refreshing."
	summaryGeneric   = "Multiple errors occurred. Check logs for details."
)

// ErrorSummary aggregates a batch of failures by category.
type ErrorSummary struct {
	TotalErrors int                   `json:"total_errors"`
	ByCategory  map[Category][]string `json:"by_category"`
	// Categories keeps first-seen order of ByCategory keys.
	Categories  []Category `json:"categories"`
	UserMessage string     `json:"user_message"`
}

// SummarizeErrors groups errors by category and picks one user message for
// the whole batch. Nil entries are ignored.
func SummarizeErrors(errs []*TrackingError) ErrorSummary {
	s := ErrorSummary{ByCategory: map[Category][]string{}}

	var first *TrackingError
	for _, e := range errs {
		if e == nil {
			continue
		}
		if first == nil {
			first = e
		}
		if _, ok := s.ByCategory[e.Category]; !ok {
			s.Categories = append(s.Categories, e.Category)
		}
		s.ByCategory[e.Category] = append(s.ByCategory[e.Category], e.Message)
		s.TotalErrors++
	}

	switch {
	case s.TotalErrors == 0:
	case len(s.Categories) == 1:
		s.UserMessage = first.UserMessage
	case s.has(CategoryNetwork):
		s.UserMessage = summaryNetwork
	case s.has(CategoryRateLimit):
		s.UserMessage = summaryRateLimit
	default:
		s.UserMessage = summaryGeneric
	}
	return s
}

func (s ErrorSummary) has(c Category) bool {
	_, ok := s.ByCategory[c]
	return ok
}
