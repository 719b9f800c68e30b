package i18n

import (
	"net/http"
)

// Middleware resolves the response locale and stores it on the context. A
// supported ?lang= query value wins over Accept-Language so exported files
// opened from a link can pick their language.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale, ok := Match(r.URL.Query().Get("lang"))
		if !ok {
			locale = ParseAcceptLanguage(r.Header.Get("Accept-Language"))
		}

		w.Header().Set("Content-Language", locale)
		w.Header().Add("Vary", "Accept-Language")

		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
	})
}
