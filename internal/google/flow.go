package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// LocalServerFlow runs the installed-app consent flow: it listens on a random
// loopback port, sends the user's browser to the consent screen and exchanges
// the code delivered to the redirect.
type LocalServerFlow struct {
	config *oauth2.Config
	logger *slog.Logger

	// Addr is the listen address, "127.0.0.1:0" picks a free port.
	Addr string
	// OpenBrowser is called with the consent URL. Failures are logged and
	// the URL is still printed to Out.
	OpenBrowser func(url string) error
	Out         io.Writer
}

// NewLocalServerFlow creates a flow for config.
func NewLocalServerFlow(logger *slog.Logger, config *oauth2.Config) *LocalServerFlow {
	return &LocalServerFlow{
		config:      config,
		logger:      logger,
		Addr:        "127.0.0.1:0",
		OpenBrowser: openBrowser,
		Out:         os.Stdout,
	}
}

type callbackResult struct {
	tok *oauth2.Token
	err error
}

// Authorize blocks until the redirect arrives, ctx is done, or the listener fails.
func (f *LocalServerFlow) Authorize(ctx context.Context) (*Credential, error) {
	ln, err := net.Listen("tcp", f.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start local redirect listener: %w", err)
	}

	config := *f.config
	config.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())
	state := uuid.NewString()

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch.", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "Authorization was not granted.", http.StatusForbidden)
			deliver(results, callbackResult{err: fmt.Errorf("authorization denied: %s", e)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code.", http.StatusBadRequest)
			deliver(results, callbackResult{err: errors.New("no authorization code received")})
			return
		}

		tok, err := config.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, "Token exchange failed.", http.StatusBadGateway)
			deliver(results, callbackResult{err: fmt.Errorf("failed to exchange code: %w", err)})
			return
		}
		_, _ = fmt.Fprint(w, "The authentication flow has completed. You may close this window.")
		deliver(results, callbackResult{tok: tok})
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(results, callbackResult{err: fmt.Errorf("local redirect listener failed: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	_, _ = fmt.Fprintf(f.Out, "Please visit this URL to authorize this application:\n%s\n", authURL)
	if f.OpenBrowser != nil {
		if err := f.OpenBrowser(authURL); err != nil {
			f.logger.Warn("Could not open a browser", "error", err)
		}
	}

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		f.logger.Info("Authorization completed.", "redirect", config.RedirectURL)
		cred := NewCredential(res.tok, config.Scopes)
		cred.bindClient(&config)
		return cred, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization aborted: %w", ctx.Err())
	}
}

func deliver(ch chan<- callbackResult, res callbackResult) {
	select {
	case ch <- res:
	default:
	}
}

// openBrowser attempts to open url in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	return exec.Command(cmd, args...).Start()
}
