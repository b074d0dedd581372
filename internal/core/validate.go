package core

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// NormalizeDomain lowercases and strips whitespace and a trailing dot.
func NormalizeDomain(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".")
}

func ValidateDomainName(name string) error {
	if name == "" {
		return ValidationError("domain is required")
	}
	if len(name) > 253 {
		return ValidationError("domain %q is too long", name)
	}
	if err := validate.Var(name, "fqdn"); err != nil {
		return ValidationError("invalid domain %q", name)
	}
	return nil
}

// NormalizeAddress lowercases an email address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func ValidateEmailAddress(address, domain string) error {
	if address == "" {
		return ValidationError("email address is required")
	}
	if err := validate.Var(address, "email"); err != nil {
		return ValidationError("invalid email address %q", address)
	}
	at := strings.LastIndexByte(address, '@')
	if at < 1 || address[at+1:] != domain {
		return ValidationError("email address %q does not belong to %s", address, domain)
	}
	return nil
}
