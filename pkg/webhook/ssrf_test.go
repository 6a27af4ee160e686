package webhook

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL_ForbiddenTargets(t *testing.T) {
	cases := []struct {
		name string
		url  string
	}{
		{"cloud metadata ip", "http://169.254.169.254/latest/meta-data/"},
		{"gcp metadata name", "http://metadata.google.internal/computeMetadata/v1/"},
		{"kubernetes default", "https://kubernetes.default/api"},
		{"kubernetes svc suffix", "https://payments.internal.svc/hook"},
		{"kubernetes svc cluster", "https://api.default.svc.cluster.local/hook"},
		{"rfc1918 ten", "http://10.0.0.5/hook"},
		{"rfc1918 one seventy two", "http://172.16.1.1/hook"},
		{"rfc1918 one ninety two", "http://192.168.1.10/hook"},
		{"loopback v4", "http://127.0.0.1/hook"},
		{"loopback v6", "http://[::1]/hook"},
		{"localhost", "http://localhost:8080/hook"},
		{"localhost subdomain", "http://api.localhost/hook"},
		{"link local", "http://169.254.1.1/hook"},
		{"ssh port", "https://example.com:22/hook"},
		{"mysql port", "https://example.com:3306/hook"},
		{"postgres port", "https://example.com:5432/hook"},
		{"redis port", "https://example.com:6379/hook"},
		{"mongo port", "https://example.com:27017/hook"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateURL(tc.url, false)
			assert.ErrorIs(t, err, ErrForbiddenTarget, tc.url)
		})
	}
}

func TestValidateURL_SchemeAndShape(t *testing.T) {
	assert.ErrorIs(t, ValidateURL("ftp://example.com/hook", false), ErrInvalidURL)
	assert.ErrorIs(t, ValidateURL("file:///etc/passwd", false), ErrInvalidURL)
	assert.ErrorIs(t, ValidateURL("https://", false), ErrInvalidURL)
	assert.ErrorIs(t, ValidateURL("https://example.com:notaport/x", false), ErrInvalidURL)
}

func TestValidateURL_AllowInsecureLiftsOnlyLoopback(t *testing.T) {
	assert.NoError(t, ValidateURL("http://127.0.0.1:8080/hook", true))
	assert.NoError(t, ValidateURL("http://localhost:9999/hook", true))

	// Everything else stays forbidden.
	assert.ErrorIs(t, ValidateURL("http://10.0.0.5/hook", true), ErrForbiddenTarget)
	assert.ErrorIs(t, ValidateURL("http://169.254.169.254/x", true), ErrForbiddenTarget)
	assert.ErrorIs(t, ValidateURL("https://kubernetes.default/x", true), ErrForbiddenTarget)
	assert.ErrorIs(t, ValidateURL("https://example.com:22/x", true), ErrForbiddenTarget)
}

func TestValidateURL_ResolvedAddressesChecked(t *testing.T) {
	restore := lookupIP
	defer func() { lookupIP = restore }()

	lookupIP = func(host string) ([]net.IP, error) {
		switch host {
		case "good.example.com":
			return []net.IP{net.ParseIP("93.184.216.34")}, nil
		case "evil.example.com":
			// One public record and one pointing inside.
			return []net.IP{net.ParseIP("93.184.216.34"), net.ParseIP("10.0.0.5")}, nil
		default:
			return nil, &net.DNSError{Err: "no such host", Name: host}
		}
	}

	assert.NoError(t, ValidateURL("https://good.example.com/hook", false))
	assert.ErrorIs(t, ValidateURL("https://evil.example.com/hook", false), ErrForbiddenTarget)
	assert.ErrorIs(t, ValidateURL("https://missing.example.com/hook", false), ErrInvalidURL)
}
