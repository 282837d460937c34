package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/imertz/greek-sites-monitor/internal/domain"
)

const userAgent = "greek-sites-monitor/1.0"

var errTooManyRedirects = errors.New("too many redirects")

// Prober performs one reachability check per call. It never returns an
// error: every invocation settles into a well-formed CheckResult, up or
// down.
type Prober struct {
	timeout   time.Duration
	transport *http.Transport
}

// New builds a Prober. Certificate verification is off by default for
// this target population (host/domain mismatches on public-sector sites
// are common); pass verifyTLS=true to restore it per deployment.
func New(timeout time.Duration, verifyTLS bool) *Prober {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{
		timeout: timeout,
		transport: &http.Transport{
			TLSClientConfig:   &tls.Config{InsecureSkipVerify: !verifyTLS},
			DisableKeepAlives: true, // no persistent connections between cycles
		},
	}
}

// Check issues one GET against the site. A completed exchange with a
// status in [200,400) is up; any other completed status is down with no
// error message; a failed exchange is down with a classified message,
// null status code and null duration.
func (p *Prober) Check(ctx context.Context, site domain.Site) domain.CheckResult {
	maxRedirects := site.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = domain.DefaultMaxRedirects
	}
	client := &http.Client{
		Timeout:   p.timeout,
		Transport: p.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	result := domain.CheckResult{
		SiteName:  site.Name,
		URL:       site.URL,
		Timestamp: time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site.URL, nil)
	if err != nil {
		msg := Classify(err)
		result.ErrorMessage = &msg
		return result
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		msg := Classify(err)
		result.ErrorMessage = &msg
		return result
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Seconds()
	code := resp.StatusCode
	result.StatusCode = &code
	result.ResponseTime = &elapsed
	result.Up = code >= 200 && code < 400
	return result
}

// Classify maps transport failures onto the fixed message taxonomy; an
// unrecognized failure keeps its raw error text.
func Classify(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		err = uerr.Err
	}
	switch {
	case errors.Is(err, errTooManyRedirects):
		return "Too many redirects"
	case isDNSError(err):
		return "DNS lookup failed"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Connection refused"
	case isTimeout(err):
		return "Connection timed out"
	}
	return err.Error()
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
