package tenant

import (
	"fmt"
	"regexp"

	"github.com/lib/pq"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
)

// MaxSlugLength is the Postgres identifier limit (NAMEDATALEN - 1)
const MaxSlugLength = 63

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateSlug checks that slug is safe to use as a namespace name:
// lowercase alphanumerics and hyphens only.
func ValidateSlug(slug string) error {
	if slug == "" {
		return apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidSlug, "slug is required")
	}
	if len(slug) > MaxSlugLength {
		return apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidSlug,
			fmt.Sprintf("slug must be at most %d characters", MaxSlugLength))
	}
	if !slugPattern.MatchString(slug) {
		return apperrors.New(apperrors.KindValidation, apperrors.CodeInvalidSlug,
			fmt.Sprintf("invalid slug %q: only lowercase letters, digits and hyphens are allowed", slug))
	}
	return nil
}

// QuoteSchema validates slug and returns it as a quoted identifier
func QuoteSchema(slug string) (string, error) {
	if err := ValidateSlug(slug); err != nil {
		return "", err
	}
	return pq.QuoteIdentifier(slug), nil
}
