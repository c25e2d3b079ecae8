package secrets

// Severity ranks how confident a rule is that a match is a live credential.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Rule describes one secret pattern. Keywords, when present, gate the
// pattern: the rule only runs against content that contains at least one
// keyword, which keeps broad regexes cheap on large files.
type Rule struct {
	Name     string
	Describe string
	Pattern  string
	Keywords []string
	Severity Severity
}

// DefaultRules covers the credential formats most often committed to
// repositories. Self-identifying prefixes (ghp_, xoxb-, sk-ant-) need no
// keyword gate.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "aws-access-key-id",
			Describe: "AWS access key ID",
			Pattern:  `(?i)(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|ASIA)[A-Z0-9]{16}`,
			Keywords: []string{"aws", "akia", "asia"},
			Severity: SeverityHigh,
		},
		{
			Name:     "aws-secret-key",
			Describe: "AWS secret access key",
			Pattern:  `(?i)aws_?secret_?(?:access_?)?key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Keywords: []string{"aws"},
			Severity: SeverityHigh,
		},
		{
			Name:     "github-token",
			Describe: "GitHub token",
			Pattern:  `(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "github-fine-grained",
			Describe: "GitHub fine-grained personal access token",
			Pattern:  `github_pat_[A-Za-z0-9_]{22,}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "gitlab-token",
			Describe: "GitLab personal access token",
			Pattern:  `glpat-[A-Za-z0-9\-]{20,}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "slack-token",
			Describe: "Slack token",
			Pattern:  `xox[baprs]-[A-Za-z0-9\-]{10,}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "stripe-key",
			Describe: "Stripe API key",
			Pattern:  `(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "anthropic-key",
			Describe: "Anthropic API key",
			Pattern:  `sk-ant-[A-Za-z0-9_\-]{90,}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "openai-key",
			Describe: "OpenAI API key",
			Pattern:  `sk-[A-Za-z0-9]{48,}`,
			Keywords: []string{"openai", "sk-"},
			Severity: SeverityHigh,
		},
		{
			Name:     "google-api-key",
			Describe: "Google API key",
			Pattern:  `AIza[A-Za-z0-9_\-]{35}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "npm-token",
			Describe: "npm access token",
			Pattern:  `npm_[A-Za-z0-9]{36}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "sendgrid-key",
			Describe: "SendGrid API key",
			Pattern:  `SG\.[A-Za-z0-9_\-]{22,}\.[A-Za-z0-9_\-]{43,}`,
			Severity: SeverityHigh,
		},
		{
			Name:     "private-key-block",
			Describe: "PEM private key",
			Pattern:  `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`,
			Severity: SeverityHigh,
		},
		{
			Name:     "database-url",
			Describe: "database connection URL with inline credentials",
			Pattern:  `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s]+:[^@\s]+@[^\s]+`,
			Keywords: []string{"postgres", "mysql", "mongodb", "redis", "amqp"},
			Severity: SeverityHigh,
		},
		{
			Name:     "generic-api-key",
			Describe: "generic API key assignment",
			Pattern:  `(?i)api[_-]?key\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords: []string{"api"},
			Severity: SeverityMedium,
		},
		{
			Name:     "generic-password",
			Describe: "password assignment",
			Pattern:  `(?i)(?:password|passwd|pwd)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords: []string{"password", "passwd", "pwd"},
			Severity: SeverityMedium,
		},
		{
			Name:     "jwt",
			Describe: "JSON web token",
			Pattern:  `eyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+`,
			Severity: SeverityMedium,
		},
		{
			Name:     "bearer-token",
			Describe: "bearer token in a header",
			Pattern:  `(?i)bearer\s+[A-Za-z0-9_\-\.]{20,}`,
			Keywords: []string{"bearer"},
			Severity: SeverityMedium,
		},
	}
}
