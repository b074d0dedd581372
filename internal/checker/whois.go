package checker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
)

// WhoisRegistrar extracts the registrar name from raw WHOIS output.
type WhoisRegistrar struct {
	client *whois.Client
}

func NewWhoisRegistrar(timeout time.Duration) *WhoisRegistrar {
	client := whois.NewClient()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &WhoisRegistrar{client: client}
}

func (w *WhoisRegistrar) Registrar(ctx context.Context, domain string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := w.client.Whois(domain)
	if err != nil {
		return "", fmt.Errorf("whois lookup failed: %w", err)
	}

	name := parseRegistrar(raw)
	if name == "" {
		return "", fmt.Errorf("no registrar in whois data for %s", domain)
	}
	return name, nil
}

func parseRegistrar(raw string) string {
	// Common spellings across registries
	patterns := []string{
		"Registrar:",
		"Sponsoring Registrar:",
		"Registrar Name:",
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		for _, pattern := range patterns {
			if strings.HasPrefix(strings.ToLower(line), strings.ToLower(pattern)) {
				value := strings.TrimSpace(line[len(pattern):])
				if value != "" {
					return value
				}
			}
		}
	}
	return ""
}
