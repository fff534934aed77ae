// Package netbox is a small NetBox REST client covering the endpoints the
// sync uses: device lookup, interface and VLAN listing, and bulk interface
// updates. List calls follow pagination until exhausted.
package netbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/swsync-network/swsync/pkg/model"
	"github.com/swsync-network/swsync/pkg/util"
	"github.com/swsync-network/swsync/pkg/version"
)

// Default timeouts.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultPatchTimeout = 300 * time.Second
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// Options configures a Client.
type Options struct {
	URL       string
	Token     string
	VerifyTLS bool

	// PageSize is sent as the limit parameter on list calls; 0 leaves the
	// server default.
	PageSize int

	Timeout      time.Duration
	PatchTimeout time.Duration

	// HTTPClient replaces the default transport; VerifyTLS is then ignored.
	HTTPClient *http.Client
}

// Client talks to one NetBox instance.
type Client struct {
	apiURL       string
	token        string
	pageSize     int
	timeout      time.Duration
	patchTimeout time.Duration
	http         *http.Client
}

// APIError is returned for a non-2xx response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("netbox: %s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// NewClient creates a client. The URL is the NetBox base URL; "/api" is
// appended.
func NewClient(opts Options) (*Client, error) {
	vb := &util.ValidationBuilder{}
	vb.Add(opts.URL != "", "netbox URL is required")
	if opts.URL != "" {
		if u, err := url.Parse(opts.URL); err != nil || u.Scheme == "" || u.Host == "" {
			vb.AddErrorf("invalid netbox URL %q", opts.URL)
		}
	}
	vb.Add(opts.Token != "", "netbox token is required")
	if err := vb.Build(); err != nil {
		return nil, err
	}

	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PatchTimeout == 0 {
		opts.PatchTimeout = DefaultPatchTimeout
	}

	hc := opts.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if !opts.VerifyTLS {
			util.Logger.Warn("NetBox TLS certificate verification is disabled")
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		hc = &http.Client{Transport: transport}
	}

	return &Client{
		apiURL:       strings.TrimRight(opts.URL, "/") + "/api",
		token:        opts.Token,
		pageSize:     opts.PageSize,
		timeout:      opts.Timeout,
		patchTimeout: opts.PatchTimeout,
		http:         hc,
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.apiURL + "/" + strings.Trim(path, "/") + "/"
}

// do sends one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, rawURL string, body, out interface{}) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s body: %w", method, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	util.WithFields(map[string]interface{}{"method": method, "url": rawURL}).Debug("NetBox request")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("netbox: %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("netbox: decoding %s %s: %w", method, rawURL, err)
	}
	return nil
}

type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// list fetches every page of a list endpoint.
func list[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	if params == nil {
		params = url.Values{}
	}
	if c.pageSize > 0 {
		params.Set("limit", strconv.Itoa(c.pageSize))
	}
	next := c.endpoint(path)
	if len(params) > 0 {
		next += "?" + params.Encode()
	}

	var all []T
	for pages := 0; next != ""; pages++ {
		if pages > 0 {
			util.WithField("url", next).Debug("Fetching next page")
		}
		var p page[T]
		if err := c.do(ctx, c.timeout, http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	return all, nil
}

// GetDevice looks a device up by name. The error wraps util.ErrNotFound
// when no device has that name.
func (c *Client) GetDevice(ctx context.Context, name string) (*Device, error) {
	devices, err := list[Device](ctx, c, "dcim/devices", url.Values{"name": {name}})
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("device %q: %w", name, util.ErrNotFound)
	}
	if len(devices) > 1 {
		util.WithDevice(name).Warnf("%d devices share this name, using id %d", len(devices), devices[0].ID)
	}
	return &devices[0], nil
}

// ListInterfaces returns every interface of a device.
func (c *Client) ListInterfaces(ctx context.Context, deviceID int) ([]Interface, error) {
	return list[Interface](ctx, c, "dcim/interfaces", url.Values{"device_id": {strconv.Itoa(deviceID)}})
}

// ListVLANs returns the VLAN catalog matching the filter. An empty filter
// lists every VLAN.
func (c *Client) ListVLANs(ctx context.Context, f VLANFilter) ([]VLAN, error) {
	params := url.Values{}
	if f.SiteID != 0 {
		params.Set("site_id", strconv.Itoa(f.SiteID))
	}
	if f.SiteSlug != "" {
		params.Set("site", f.SiteSlug)
	}
	return list[VLAN](ctx, c, "ipam/vlans", params)
}

// BulkUpdateInterfaces applies all operations in a single PATCH request to
// dcim/interfaces/. No request is sent for an empty list.
func (c *Client) BulkUpdateInterfaces(ctx context.Context, ops []*model.ChangeOperation) ([]Interface, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	util.WithField("count", len(ops)).Info("Sending bulk interface update")

	var updated []Interface
	if err := c.do(ctx, c.patchTimeout, http.MethodPatch, c.endpoint("dcim/interfaces"), ops, &updated); err != nil {
		return nil, err
	}
	return updated, nil
}
