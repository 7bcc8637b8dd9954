package mailbox

import "strings"

// DomainOf returns the lower-cased domain of an email address, or "" if the
// address has no '@'
func DomainOf(address string) string {
	_, domain, ok := strings.Cut(strings.TrimSpace(address), "@")
	if !ok {
		return ""
	}
	// a second '@' ends the domain
	domain, _, _ = strings.Cut(domain, "@")
	return strings.ToLower(domain)
}

// LocalPart returns the part of an email address before the '@'
func LocalPart(address string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(address), "@")
	return local
}
