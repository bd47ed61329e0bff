package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "bizreg/pkg/domain-errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SearchRequest is the parsed query string of a search call.
type SearchRequest struct {
	Query           string `validate:"required,min=2,max=100"`
	Limit           int    `validate:"gte=0"`
	IncludeInactive bool
}

// ParseSearchRequest reads q, limit and include_inactive. The query is trimmed
// before its length is checked.
func ParseSearchRequest(q, limit, includeInactive string) (SearchRequest, error) {
	req := SearchRequest{Query: strings.TrimSpace(q)}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return SearchRequest{}, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer")
		}
		req.Limit = n
	}
	if includeInactive != "" {
		b, err := strconv.ParseBool(includeInactive)
		if err != nil {
			return SearchRequest{}, dErrors.New(dErrors.CodeBadRequest, "include_inactive must be a boolean")
		}
		req.IncludeInactive = b
	}
	if err := req.Validate(); err != nil {
		return SearchRequest{}, err
	}
	return req, nil
}

// Validate checks field constraints and reports the first violation.
func (r SearchRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid search request")
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Query":
		return dErrors.New(dErrors.CodeBadRequest, "q must be between 2 and 100 characters")
	case "Limit":
		return dErrors.New(dErrors.CodeBadRequest, "limit must not be negative")
	}
	return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid %s", strings.ToLower(fe.Field())))
}

// SearchResponse is the body of a search call.
type SearchResponse struct {
	Results []Summary `json:"results"`
	Count   int       `json:"count"`
}
