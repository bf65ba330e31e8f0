package handler

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"

	"clipfeed/internal/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// FeedQuery is the query string shared by both feed endpoints.
// Limit is nil when absent; the services apply the default and the cap.
// Cursor is opaque here: an unknown cursor is a valid request that yields an empty page.
type FeedQuery struct {
	Cursor *string
	Limit  *int `validate:"omitempty,min=1"`
}

// LimitOrZero returns the requested limit, or 0 to ask for the default.
func (q FeedQuery) LimitOrZero() int {
	if q.Limit == nil {
		return 0
	}
	return *q.Limit
}

// parseFeedQuery reads cursor and limit. A limit that is not a positive integer is
// reported as model.ErrInvalidLimit.
func parseFeedQuery(values url.Values) (FeedQuery, error) {
	var q FeedQuery

	if c := values.Get("cursor"); c != "" {
		q.Cursor = &c
	}

	if l := values.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil {
			return q, fmt.Errorf("%w: %q", model.ErrInvalidLimit, l)
		}
		q.Limit = &parsed
	}

	if err := getValidator().Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Limit" {
			return q, fmt.Errorf("%w: %d", model.ErrInvalidLimit, *q.Limit)
		}
		return q, err
	}
	return q, nil
}
