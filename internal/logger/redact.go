package logger

import "strings"

// RedactEmail keeps the first two characters of the local part and the domain:
// "john.doe@example.com" becomes "jo***@example.com".
func RedactEmail(addr string) string {
	addr = strings.TrimSpace(addr)
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return RedactPhone(addr)
	}
	local, domain := addr[:at], addr[at+1:]
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***@" + domain
}

// RedactPhone keeps only the last four characters of a phone number or other
// opaque address.
func RedactPhone(number string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		return ""
	}
	if len(number) <= 4 {
		return "***"
	}
	return "***" + number[len(number)-4:]
}
