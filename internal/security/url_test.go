package security

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/example/messenger/internal/adapters/common"
)

func TestValidateURLDefaults(t *testing.T) {
	u, err := ValidateURL("https://example.com", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Hostname())
}

func TestValidateURLRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		opts func(*Options)
		want string
	}{
		{name: "http by default", raw: "http://example.com", want: `Protocol "http" not allowed`},
		{name: "garbage", raw: "not a url", want: "Invalid URL format"},
		{name: "empty", raw: "", want: "Invalid URL format"},
		{name: "ftp", raw: "ftp://example.com", want: `Protocol "ftp" not allowed`},
		{
			name: "host allow-list",
			raw:  "https://evil.com",
			opts: func(o *Options) { o.AllowedHosts = []string{"example.com"} },
			want: `Host "evil.com" not allowed`,
		},
		{
			name: "port allow-list",
			raw:  "https://example.com:9999",
			opts: func(o *Options) { o.AllowedPorts = []int{443, 8443} },
			want: "Port 9999 not allowed. Allowed ports: 443, 8443",
		},
		{name: "localhost", raw: "https://localhost", want: "Blocked host: localhost"},
		{name: "loopback", raw: "https://127.0.0.1", want: "Private IP addresses are not allowed"},
		{name: "class a", raw: "https://10.0.0.1", want: "Private IP addresses are not allowed"},
		{name: "class b", raw: "https://172.16.0.1", want: "Private IP addresses are not allowed"},
		{name: "class c", raw: "https://192.168.1.1", want: "Private IP addresses are not allowed"},
		{name: "metadata ip", raw: "https://169.254.169.254", want: "Private IP addresses are not allowed: 169.254.169.254"},
		{name: "unspecified", raw: "https://0.0.0.0", want: "Blocked host: 0.0.0.0"},
		{name: "metadata host", raw: "https://METADATA.google.internal", want: "Blocked host: METADATA.google.internal"},
		{name: "ipv6 loopback", raw: "https://[::1]", want: "Private IP addresses are not allowed: ::1"},
		{name: "ipv6 link local", raw: "https://[fe80::1]", want: "Private IP addresses are not allowed"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tc.opts != nil {
				tc.opts(&opts)
			}
			_, err := ValidateURL(tc.raw, opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrConfiguration)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateURLRelaxedOptions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		opts Options
	}{
		{name: "http allowed", raw: "http://example.com", opts: Options{AllowedProtocols: []string{"http", "https"}, AllowedPorts: []int{80, 443}}},
		{name: "protocol check disabled", raw: "ftp://example.com", opts: Options{AllowedProtocols: []string{}, AllowedPorts: []int{}}},
		{name: "port check disabled", raw: "https://example.com:9999", opts: Options{AllowedPorts: []int{}}},
		{name: "explicit allowed port", raw: "https://example.com:8443", opts: Options{AllowedPorts: []int{443, 8443}}},
		{name: "private allowed", raw: "https://192.168.1.1", opts: Options{AllowPrivateIPs: true}},
		{name: "localhost allowed", raw: "https://localhost", opts: Options{AllowPrivateIPs: true}},
		{name: "public ipv6", raw: "https://[2001:db8::1]", opts: DefaultOptions()},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateURL(tc.raw, tc.opts)
			assert.NoError(t, err)
		})
	}
}

func TestValidateURLPartialOptionsKeepDefaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		opts Options
		want string
	}{
		{
			name: "loopback with protocol and port lists",
			raw:  "http://127.0.0.1",
			opts: Options{AllowedProtocols: []string{"http", "https"}, AllowedPorts: []int{80, 443}},
			want: "Private IP addresses are not allowed: 127.0.0.1",
		},
		{name: "metadata with zero options", raw: "http://169.254.169.254/latest/meta-data", opts: Options{}, want: `Protocol "http" not allowed`},
		{name: "metadata over https", raw: "https://169.254.169.254/latest/meta-data", opts: Options{}, want: "Private IP addresses are not allowed"},
		{name: "default port list", raw: "https://example.com:8443", opts: Options{AllowedHosts: []string{"example.com"}}, want: "Port 8443 not allowed"},
		{name: "metadata host with checks disabled", raw: "http://metadata.google.internal", opts: Options{AllowedProtocols: []string{}, AllowedPorts: []int{}}, want: "Blocked host"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateURL(tc.raw, tc.opts)
			require.ErrorIs(t, err, common.ErrConfiguration)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	got := Options{}.WithDefaults()
	assert.Equal(t, DefaultOptions(), got)

	got = Options{AllowedPorts: []int{}, Timeout: time.Second}.WithDefaults()
	assert.Equal(t, []string{"https"}, got.AllowedProtocols)
	assert.Empty(t, got.AllowedPorts)
	assert.NotNil(t, got.AllowedPorts)
	assert.Equal(t, time.Second, got.Timeout)
}

func TestAcceptStatus(t *testing.T) {
	assert.True(t, AcceptStatus(200))
	assert.True(t, AcceptStatus(299))
	assert.True(t, AcceptStatus(300))
	assert.False(t, AcceptStatus(400))
	assert.False(t, AcceptStatus(500))
}

func TestNewClientRefusesProtocolRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "ftp://example.com/x", http.StatusFound)
	}))
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	client := NewClient(target, 0)
	assert.Equal(t, DefaultTimeout, client.Timeout)

	_, err = client.Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestNewClientCapsRedirects(t *testing.T) {
	hops := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, srv.URL+"/next", http.StatusFound)
	}))
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	_, err = NewClient(target, 0).Get(srv.URL)
	require.Error(t, err)
	assert.Equal(t, MaxRedirects, hops)
}
