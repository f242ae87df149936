package emailmask

import "strings"

// Mask obscures the local part of an email address for display,
// e.g. "johndoe@example.com" becomes "j*****e@example.com".
func Mask(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 3 {
		return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + "@" + domain
}
