package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUnreachable means the document server did not answer its health check.
var ErrUnreachable = errors.New("document server not reachable")

// DefaultTimeout bounds a single health probe.
const DefaultTimeout = 5 * time.Second

// Checker probes the document server's /healthcheck endpoint with HEAD.
type Checker struct {
	client *resty.Client
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{client: resty.New().SetTimeout(timeout)}
}

// Check returns nil when HEAD <serverURL>/healthcheck answers with a status below 500.
func (c *Checker) Check(ctx context.Context, serverURL string) error {
	target := strings.TrimRight(serverURL, "/") + "/healthcheck"
	resp, err := c.client.R().SetContext(ctx).Head(target)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", ErrUnreachable, serverURL, err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("%w at %s: status %d", ErrUnreachable, serverURL, resp.StatusCode())
	}
	return nil
}
