package compiler

// Filter is one parsed network rule.
type Filter struct {
	// Mask is the option bit mask (request types, party, match mode).
	Mask uint32
	// Domains are the hostnames of the domain= option.
	Domains []string
	// NotDomains are the negated (~) hostnames of the domain= option.
	NotDomains []string
	// Pattern is the URL pattern without anchors.
	Pattern string
	// Hostname is the anchored hostname of ||host^ rules.
	Hostname string
	// Modifier is the value of a content modifier such as redirect= or csp=.
	Modifier string
	// Tokens are the token hashes the rule can be found under.
	Tokens []uint64
	// RawLine is the source text, kept for debugging.
	RawLine string
}

// List is the input of Compile.
type List struct {
	Name       string
	Generation uint64
	Filters    []Filter
}
