package taxonomy

import (
	"net/http"
	"strings"
)

// Category classifies a downstream submission failure.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryValidation
	CategoryNotFound
	CategoryRateLimit
	CategoryContentRejected
	CategoryDomainNotVerified
	CategorySystemError
	CategoryTimeout
	CategoryAuthentication
	CategoryPermission
	CategoryPayloadTooLarge
	CategoryQuotaExceeded
	CategoryServiceUnavailable
	categoryCount
)

var categoryNames = [categoryCount]string{
	CategoryUnknown:            "unknown",
	CategoryValidation:         "validation",
	CategoryNotFound:           "not-found",
	CategoryRateLimit:          "rate-limit",
	CategoryContentRejected:    "content-rejected",
	CategoryDomainNotVerified:  "domain-not-verified",
	CategorySystemError:        "system-error",
	CategoryTimeout:            "timeout",
	CategoryAuthentication:     "authentication",
	CategoryPermission:         "permission",
	CategoryPayloadTooLarge:    "payload-too-large",
	CategoryQuotaExceeded:      "quota-exceeded",
	CategoryServiceUnavailable: "service-unavailable",
}

func (c Category) String() string {
	if c >= categoryCount {
		return "unknown"
	}
	return categoryNames[c]
}

// submissionTable rows for CategoryUnknown stay zero; unknown categories take the
// keyword path.
var submissionTable = [categoryCount]Reply{
	CategoryValidation:         {Code: CodeSyntaxParams, Enhanced: ESCInvalidParams, Message: "Message rejected: invalid parameters"},
	CategoryNotFound:           {Code: CodeMailboxUnavailable, Enhanced: ESCBadDestination, Message: "Requested resource not found"},
	CategoryRateLimit:          {Code: CodeLocalError, Enhanced: ESCTempRateLimited, Message: "Rate limit exceeded, please retry later", Retryable: true},
	CategoryContentRejected:    {Code: CodeTransactionFailed, Enhanced: ESCDeliveryNotAuth, Message: "Message content rejected"},
	CategoryDomainNotVerified:  {Code: CodeMailboxUnavailable, Enhanced: ESCDeliveryNotAuth, Message: "Sender domain not verified"},
	CategorySystemError:        {Code: CodeLocalError, Enhanced: ESCTempSystem, Message: "Temporary system error, please retry", Retryable: true},
	CategoryTimeout:            {Code: CodeLocalError, Enhanced: ESCTempTimeout, Message: "Submission timed out, please retry", Retryable: true},
	CategoryAuthentication:     {Code: CodeAuthInvalid, Enhanced: ESCCredentialsInvalid, Message: msgCredentialsInvalid},
	CategoryPermission:         {Code: CodeMailboxUnavailable, Enhanced: ESCDeliveryNotAuth, Message: msgScopeShort},
	CategoryPayloadTooLarge:    {Code: CodeExceededStorage, Enhanced: ESCMessageTooBig, Message: "Message size exceeds limit"},
	CategoryQuotaExceeded:      {Code: CodeInsufficientSpace, Enhanced: ESCTempQuota, Message: "Sending quota exceeded, please retry later", Retryable: true},
	CategoryServiceUnavailable: {Code: CodeServiceUnavailable, Enhanced: ESCTempServiceDown, Message: "Service temporarily unavailable, please retry", Retryable: true},
}

// categoryAliases maps the error codes used by submission APIs onto categories.
var categoryAliases = map[string]Category{
	"validation":          CategoryValidation,
	"validation_error":    CategoryValidation,
	"invalid_request":     CategoryValidation,
	"not_found":           CategoryNotFound,
	"not-found":           CategoryNotFound,
	"rate_limit":          CategoryRateLimit,
	"rate-limit":          CategoryRateLimit,
	"rate_limit_exceeded": CategoryRateLimit,
	"content_rejected":    CategoryContentRejected,
	"content-rejected":    CategoryContentRejected,
	"domain_not_verified": CategoryDomainNotVerified,
	"domain-not-verified": CategoryDomainNotVerified,
	"system_error":        CategorySystemError,
	"system-error":        CategorySystemError,
	"internal_error":      CategorySystemError,
	"timeout":             CategoryTimeout,
	"unauthorized":        CategoryAuthentication,
	"authentication":      CategoryAuthentication,
	"forbidden":           CategoryPermission,
	"permission":          CategoryPermission,
	"payload_too_large":   CategoryPayloadTooLarge,
	"payload-too-large":   CategoryPayloadTooLarge,
	"quota_exceeded":      CategoryQuotaExceeded,
	"quota-exceeded":      CategoryQuotaExceeded,
	"service_unavailable": CategoryServiceUnavailable,
	"service-unavailable": CategoryServiceUnavailable,
}

// ParseCategory resolves an API error code. Unrecognized codes yield CategoryUnknown.
func ParseCategory(code string) Category {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(code))]; ok {
		return c
	}
	return CategoryUnknown
}

// CategoryFromStatus derives a category from an HTTP status code.
func CategoryFromStatus(status int) Category {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CategoryValidation
	case http.StatusUnauthorized:
		return CategoryAuthentication
	case http.StatusForbidden:
		return CategoryPermission
	case http.StatusNotFound:
		return CategoryNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return CategoryTimeout
	case http.StatusRequestEntityTooLarge:
		return CategoryPayloadTooLarge
	case http.StatusTooManyRequests:
		return CategoryRateLimit
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return CategoryServiceUnavailable
	}
	if status >= 500 {
		return CategorySystemError
	}
	return CategoryUnknown
}

type keywordRule struct {
	keywords []string
	category Category
}

// Evaluated in order; the first rule with a matching keyword wins.
var keywordRules = []keywordRule{
	{keywords: []string{"not found", "not-found", "not_found", "does not exist"}, category: CategoryNotFound},
	{keywords: []string{"rate limit", "rate-limit", "too many requests"}, category: CategoryRateLimit},
	{keywords: []string{"auth"}, category: CategoryAuthentication},
	{keywords: []string{"size", "too large"}, category: CategoryPayloadTooLarge},
	{keywords: []string{"invalid"}, category: CategoryValidation},
	{keywords: []string{"timeout", "timed out", "deadline exceeded"}, category: CategoryTimeout},
	{keywords: []string{"rejected"}, category: CategoryContentRejected},
}

// Classify picks a category from free text. It is best effort; new failure kinds
// belong in the category table.
func Classify(text string) Category {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

// ForSubmission maps a submission failure onto a reply. Unknown categories fall back to
// Classify(text) and then to the system-error row.
func ForSubmission(c Category, text string) Reply {
	if c > CategoryUnknown && c < categoryCount {
		return submissionTable[c]
	}
	if k := Classify(text); k != CategoryUnknown {
		return submissionTable[k]
	}
	return submissionTable[CategorySystemError]
}

// Categories returns every known category except CategoryUnknown.
func Categories() []Category {
	out := make([]Category, 0, categoryCount-1)
	for c := CategoryUnknown + 1; c < categoryCount; c++ {
		out = append(out, c)
	}
	return out
}
