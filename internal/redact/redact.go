// Package redact strips credentials and infrastructure details from error
// text before it is logged or stored as a task's user-visible failure reason.
package redact

import "regexp"

// Placeholders substituted for redacted fragments.
const (
	Placeholder           = "[REDACTED]"
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	TokenPlaceholder      = "[REDACTED_TOKEN]"
	PathPlaceholder       = "[REDACTED_PATH]"
)

type rule struct {
	re          *regexp.Regexp
	placeholder string
}

// Rules run in order; earlier rules consume text later rules would match
// less precisely (a JWT before the generic key rule, a DSN before the host rule).
var rules = []rule{
	{regexp.MustCompile(`(?i)\b(postgres(?:ql)?|mysql|redis|amqp)://[^@\s]+@`), CredentialPlaceholder},
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), "[REDACTED_JWT]"},
	{regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9_\-.~+/]{8,}=*`), "Bearer " + TokenPlaceholder},
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}`), TokenPlaceholder},
	{regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`), KeyPlaceholder},
	{regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{20,}`), KeyPlaceholder},
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{12,}`), KeyPlaceholder},
	{regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*[=:]\s*['"]?[^'"&\s]{3,}`), CredentialPlaceholder},
	{regexp.MustCompile(`(?i)\b(api[_-]?key|token|secret|access[_-]?key)\s*[=:]\s*['"]?[A-Za-z0-9_\-.~+/]{8,}`), KeyPlaceholder},
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE)\b[^;]*?\b(FROM|INTO|SET)\b[\s\w.,*()=$'"]*`), "[REDACTED_SQL]"},
	{regexp.MustCompile(`(^|\s)(/[\w.-]+){2,}`), "$1" + PathPlaceholder},
	{regexp.MustCompile(`[A-Za-z]:\\[^\\\s]+(\\[^\\\s]+)+`), PathPlaceholder},
}

// String redacts sensitive fragments from s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.placeholder)
	}
	return s
}

// Error redacts err.Error(); a nil error yields "".
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
