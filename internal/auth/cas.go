package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/graduation-photo/internal/apperror"
)

// Identity is what the campus SSO tells us about a student.
type Identity struct {
	Name string
}

// IdentityValidator checks a student number and password against the
// campus SSO.
type IdentityValidator interface {
	ValidateIdentity(ctx context.Context, sduID, password string) (*Identity, error)
}

// maxCASBody caps how much of any SSO response is read.
const maxCASBody = 64 << 10

var userNamePattern = regexp.MustCompile(`(?s)<cas:USER_NAME>(.*?)</cas:USER_NAME>`)

// CASClient logs in through the CAS REST protocol:
//
//  1. POST {base}/cas/restlet/tickets            username, password → TGT
//  2. POST {base}/cas/restlet/tickets/{TGT}      service            → ST
//  3. GET  {base}/cas/serviceValidate?ticket=ST&service=...          → XML
//
// The display name is taken from <cas:USER_NAME> in the final response.
type CASClient struct {
	baseURL    string
	serviceURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewCASClient returns a client for the SSO at baseURL. A nil httpClient
// gets one with a 10 second timeout.
func NewCASClient(baseURL, serviceURL string, httpClient *http.Client, logger *slog.Logger) *CASClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &CASClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceURL: serviceURL,
		client:     httpClient,
		logger:     logger,
	}
}

// ValidateIdentity returns the student's name, or an Unauthorized AppError
// for any failure along the way: wrong password, SSO unreachable, or an
// answer we cannot parse. The caller only needs to know the login failed;
// the cause goes to the log.
func (c *CASClient) ValidateIdentity(ctx context.Context, sduID, password string) (*Identity, error) {
	name, err := c.login(ctx, sduID, password)
	if err != nil {
		c.logger.Info("cas login failed", "sdu_id", sduID, "error", err)
		return nil, apperror.Unauthorized("authorization failed")
	}
	return &Identity{Name: name}, nil
}

func (c *CASClient) login(ctx context.Context, sduID, password string) (string, error) {
	tgt, err := c.postForm(ctx, c.baseURL+"/cas/restlet/tickets", url.Values{
		"username": {sduID},
		"password": {password},
	})
	if err != nil {
		return "", fmt.Errorf("requesting ticket-granting ticket: %w", err)
	}

	st, err := c.postForm(ctx, c.baseURL+"/cas/restlet/tickets/"+url.PathEscape(tgt), url.Values{
		"service": {c.serviceURL},
	})
	if err != nil {
		return "", fmt.Errorf("requesting service ticket: %w", err)
	}

	q := url.Values{"ticket": {st}, "service": {c.serviceURL}}
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/cas/serviceValidate?"+q.Encode(), nil, "")
	if err != nil {
		return "", fmt.Errorf("validating service ticket: %w", err)
	}

	m := userNamePattern.FindStringSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("no USER_NAME in validation response")
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return "", fmt.Errorf("empty USER_NAME in validation response")
	}
	return name, nil
}

// postForm sends a form and returns the trimmed body, which for both ticket
// requests is the ticket itself.
func (c *CASClient) postForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	body, err := c.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	ticket := strings.TrimSpace(body)
	if ticket == "" {
		return "", fmt.Errorf("empty ticket")
	}
	return ticket, nil
}

func (c *CASClient) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return "", err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCASBody))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return string(data), nil
}
