package customdomain

import "strings"

const (
	maxDomainLength = 253
	maxLabelLength  = 63
	minTLDLength    = 2
)

// Normalize trims whitespace, lower-cases and drops a trailing root dot.
func Normalize(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimSuffix(d, ".")
}

// IsValidDomain reports whether domain is a syntactically valid hostname:
// at least two labels, labels of 1-63 letters, digits or hyphens without
// leading or trailing hyphens, and an alphabetic top-level label.
func IsValidDomain(domain string) bool {
	if domain == "" || len(domain) > maxDomainLength {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !validLabel(label) {
			return false
		}
	}
	return validTLD(labels[len(labels)-1])
}

func validLabel(label string) bool {
	if len(label) == 0 || len(label) > maxLabelLength {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

func validTLD(tld string) bool {
	if len(tld) < minTLDLength {
		return false
	}
	for i := 0; i < len(tld); i++ {
		c := tld[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// IsApex reports whether domain has no subdomain part (two labels).
func IsApex(domain string) bool {
	return len(strings.Split(domain, ".")) <= 2
}

// RecordName returns the host label a user enters at their DNS provider:
// "@" for an apex domain, otherwise the leftmost label.
func RecordName(domain string) string {
	if IsApex(domain) {
		return "@"
	}
	return strings.SplitN(domain, ".", 2)[0]
}

// EqualHostnames compares two hostnames ignoring case and a trailing dot.
func EqualHostnames(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
