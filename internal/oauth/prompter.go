package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/skratchdot/open-golang/open"
)

// RedirectPath is the path every redirect URI ends in
const RedirectPath = "/oauthredirect"

// ErrPrompterClosed is returned when the prompter shuts down mid-prompt
var ErrPrompterClosed = errors.New("prompter closed")

// Prompter shows the consent screen and captures the redirect
type Prompter interface {
	// RedirectURI readies the redirect target and returns its URI
	RedirectURI(ctx context.Context) (string, error)
	// Prompt shows authURL and blocks until a redirect arrives or ctx is done
	Prompt(ctx context.Context, authURL string) (*url.URL, error)
}

// relayPage moves the fragment, which browsers never send, into the query
const relayPage = `<!doctype html>
<html><head><title>DoggyDay sign-in</title></head>
<body><p id="msg">Finishing sign-in&hellip;</p>
<script>
var p = window.location.hash ? window.location.hash.substring(1) : window.location.search.substring(1);
fetch("` + RedirectPath + `/complete?" + p).then(function () {
  document.getElementById("msg").textContent = "Signed in. You can close this window.";
});
</script></body></html>`

// BrowserPrompter opens the system browser. Web platforms receive the
// redirect on a loopback listener; native platforms receive it through
// Deliver, called by whatever handles the app's URI scheme.
type BrowserPrompter struct {
	platform Platform
	scheme   string
	port     int
	open     func(string) error
	logger   *slog.Logger

	redirects chan *url.URL
	closed    chan struct{}

	mu        sync.Mutex
	server    *http.Server
	redirect  string
	closeOnce sync.Once
}

// BrowserPrompterOption configures a BrowserPrompter
type BrowserPrompterOption func(*BrowserPrompter)

// WithLoopbackPort fixes the loopback port. Zero picks a free port.
func WithLoopbackPort(port int) BrowserPrompterOption {
	return func(p *BrowserPrompter) {
		p.port = port
	}
}

// WithOpener replaces the browser launcher
func WithOpener(fn func(string) error) BrowserPrompterOption {
	return func(p *BrowserPrompter) {
		p.open = fn
	}
}

// WithPrompterLogger sets the logger
func WithPrompterLogger(l *slog.Logger) BrowserPrompterOption {
	return func(p *BrowserPrompter) {
		p.logger = l
	}
}

// NewBrowserPrompter creates a prompter for platform. scheme is the app's URI
// scheme and is only used by native platforms.
func NewBrowserPrompter(platform Platform, scheme string, opts ...BrowserPrompterOption) *BrowserPrompter {
	p := &BrowserPrompter{
		platform:  platform,
		scheme:    scheme,
		open:      open.Run,
		logger:    slog.Default(),
		redirects: make(chan *url.URL, 1),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RedirectURI implements Prompter
func (p *BrowserPrompter) RedirectURI(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.redirect != "" {
		return p.redirect, nil
	}

	if p.platform.Native() {
		if p.scheme == "" {
			return "", fmt.Errorf("app scheme is required for platform %s", p.platform)
		}
		p.redirect = p.scheme + "://oauthredirect"
		return p.redirect, nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p.port)))
	if err != nil {
		return "", fmt.Errorf("failed to listen for OAuth redirect: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+RedirectPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(relayPage))
	})
	mux.HandleFunc("GET "+RedirectPath+"/complete", func(w http.ResponseWriter, r *http.Request) {
		u := *r.URL
		u.Path = RedirectPath
		p.offer(&u)
		w.WriteHeader(http.StatusNoContent)
	})

	p.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("OAuth redirect listener stopped", "error", err)
		}
	}()

	p.redirect = "http://" + ln.Addr().String() + RedirectPath
	p.logger.Debug("OAuth redirect listener started", "redirect_uri", p.redirect)
	return p.redirect, nil
}

// Prompt implements Prompter
func (p *BrowserPrompter) Prompt(ctx context.Context, authURL string) (*url.URL, error) {
	// Anything delivered before this prompt belongs to an earlier one.
	select {
	case <-p.redirects:
	default:
	}

	if err := p.open(authURL); err != nil {
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}

	select {
	case u := <-p.redirects:
		return u, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrPrompterClosed
	}
}

// Deliver hands a redirect received through the app's URI scheme to the
// pending prompt.
func (p *BrowserPrompter) Deliver(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse redirect: %w", err)
	}
	p.offer(u)
	return nil
}

// offer keeps only the newest redirect
func (p *BrowserPrompter) offer(u *url.URL) {
	for {
		select {
		case p.redirects <- u:
			return
		default:
		}
		select {
		case <-p.redirects:
		default:
		}
	}
}

// Close stops the loopback listener and fails any pending prompt
func (p *BrowserPrompter) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		p.mu.Lock()
		srv := p.server
		p.mu.Unlock()
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = srv.Shutdown(ctx)
		}
	})
	return err
}
