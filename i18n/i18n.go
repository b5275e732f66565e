// Package i18n translates validation and error codes for API responses.
package i18n

import (
	"golang.org/x/text/language"
)

// DefaultLanguage is used when the caller asks for nothing we support.
const DefaultLanguage = "en"

var supported = []language.Tag{language.English, language.Arabic}

var matcher = language.NewMatcher(supported)

var messages = map[string]map[string]string{
	"en": {
		"required":             "Required",
		"invalid_date":         "Not a valid date (yyyy-MM-dd)",
		"before_start":         "Must not be before the start date",
		"invalid_choice":       "Not an allowed value",
		"invalid_email":        "Not a valid email address",
		"must_be_positive":     "Must be greater than zero",
		"must_not_be_negative": "Must not be negative",
		"out_of_range":         "Out of range",
		"too_short":            "Too short",
	},
	"ar": {
		"required":             "مطلوب",
		"invalid_date":         "تاريخ غير صالح (yyyy-MM-dd)",
		"before_start":         "يجب ألا يسبق تاريخ البداية",
		"invalid_choice":       "قيمة غير مسموح بها",
		"invalid_email":        "بريد إلكتروني غير صالح",
		"must_be_positive":     "يجب أن يكون أكبر من صفر",
		"must_not_be_negative": "يجب ألا يكون سالبًا",
		"out_of_range":         "خارج النطاق",
		"too_short":            "قصير جدًا",
	},
}

// DetectLanguage picks a supported language from an Accept-Language header.
func DetectLanguage(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLanguage
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// T returns the message for code, falling back to English and then to the
// code itself.
func T(lang, code string) string {
	if m, ok := messages[lang][code]; ok {
		return m
	}
	if m, ok := messages[DefaultLanguage][code]; ok {
		return m
	}
	return code
}

// Messages translates a field-to-code map.
func Messages(lang string, codes map[string]string) map[string]string {
	out := make(map[string]string, len(codes))
	for field, code := range codes {
		out[field] = T(lang, code)
	}
	return out
}
