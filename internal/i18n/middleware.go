package i18n

import "net/http"

// Middleware injects a translator into every request context. The language
// comes from the lang query parameter, then Accept-Language, then fallback.
func Middleware(fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var prefs []string
			if q := r.URL.Query().Get("lang"); q != "" {
				prefs = append(prefs, q)
			}
			if h := r.Header.Get("Accept-Language"); h != "" {
				prefs = append(prefs, h)
			}
			lang := fallback
			if len(prefs) > 0 {
				lang = Match(prefs...)
			}
			ctx := WithTranslator(r.Context(), NewTranslator(lang, fallback))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
