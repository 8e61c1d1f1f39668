package network

import (
	"net/http/cookiejar"
	"testing"
)

func TestNewClientUsesDefaultsWhenNilConfig(t *testing.T) {
	c := NewClient(nil)
	if c.Timeout != DefaultClientConfig().Timeout {
		t.Errorf("expected default timeout, got %v", c.Timeout)
	}
	if c.Jar == nil {
		t.Errorf("expected a cookie jar to be attached")
	}
}

func TestNewStreamingClientHasNoOverallTimeout(t *testing.T) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}

	c := NewStreamingClient(jar)
	if c.Timeout != 0 {
		t.Errorf("streaming client must have no overall timeout, got %v", c.Timeout)
	}
	if c.Jar != jar {
		t.Errorf("streaming client must reuse the supplied jar")
	}
}
