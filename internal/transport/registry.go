package transport

import "fmt"

// Registry maps a provider name to its Transport implementation.
type Registry map[string]Transport

// For returns the transport for a provider.
func (r Registry) For(provider string) (Transport, error) {
	t, ok := r[provider]
	if !ok {
		return nil, fmt.Errorf("no transport registered for provider %q", provider)
	}
	return t, nil
}
