package i18n

import "net/http"

// LangCookie overrides the browser language when set.
const LangCookie = "lang"

// Middleware injects a localizer into every request context. The language
// comes from the ?lang= query, the lang cookie, then Accept-Language.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var prefs []string
		if q := r.URL.Query().Get("lang"); q != "" && Supported(q) {
			prefs = append(prefs, q)
			http.SetCookie(w, &http.Cookie{Name: LangCookie, Value: q, Path: "/", SameSite: http.SameSiteLaxMode})
		}
		if c, err := r.Cookie(LangCookie); err == nil && c.Value != "" {
			prefs = append(prefs, c.Value)
		}
		if al := r.Header.Get("Accept-Language"); al != "" {
			prefs = append(prefs, al)
		}
		ctx := WithLocalizer(r.Context(), NewLocalizer(prefs...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
