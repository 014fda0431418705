package service

import (
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/spec-kit/station-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination describes one page of a listing.
type Pagination struct {
	CurrentPage  int
	TotalPages   int
	TotalItems   int
	ItemsPerPage int
}

// NormalizePage clamps page to ≥1 and limit to 1..MaxPageSize, defaulting limit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func newPagination(page, limit, total int) Pagination {
	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{CurrentPage: page, TotalPages: pages, TotalItems: total, ItemsPerPage: limit}
}

func pageWindow(page, limit int) repository.Page {
	return repository.Page{Limit: limit, Offset: (page - 1) * limit}
}

// mapRepoErr converts repository sentinels into API errors.
func mapRepoErr(err error, resource string, details map[string]any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, details)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", details)
	case errors.Is(err, repository.ErrReferenced):
		return apperrors.NewConflict(resource+" is still referenced", details)
	default:
		return apperrors.MapError(err)
	}
}

var textPolicy = bluemonday.StrictPolicy()

const maxSanitizePasses = 5

// sanitizeText strips markup from user-supplied text and returns plain text.
// Entities are decoded before each pass, and passes repeat until the text
// is stable, so neither encoded nor nested markup comes out as a tag.
func sanitizeText(s string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		clean := html.UnescapeString(textPolicy.Sanitize(html.UnescapeString(s)))
		if clean == s {
			return strings.TrimSpace(clean)
		}
		s = clean
	}
	return strings.TrimSpace(textPolicy.Sanitize(s))
}

func fieldError(field, message string) error {
	return apperrors.NewFieldValidationError([]apperrors.FieldError{{Field: field, Message: message}})
}
