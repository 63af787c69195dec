package konnect

import (
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/kong/go-kong/kong"
	"github.com/rs/zerolog"
	"github.com/ssgelm/cookiejarparser"
)

// ClientOpts configures a Client.
type ClientOpts struct {
	// Address is the regional Konnect API, e.g. https://eu.api.konghq.com.
	Address string
	// Token is a personal or system access token sent as a bearer token.
	Token string
	// CookieFile is a Netscape-format cookie file holding a session.
	CookieFile string
	// RetryMax is the number of transport-level retries on connection
	// errors and 5xx replies. Zero keeps every call one-shot.
	RetryMax int
	// HTTPClient replaces the retrying transport. Auth headers and the
	// cookie jar are added to a copy of it.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

func newHTTPClient(opts ClientOpts) (*http.Client, error) {
	var base *http.Client
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		base = &c
	} else {
		rc := retryablehttp.NewClient()
		rc.RetryMax = opts.RetryMax
		rc.Logger = leveledLogger{logger: opts.Logger}
		// keep the last response so go-kong can turn it into an APIError
		rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
		base = rc.StandardClient()
	}
	if opts.CookieFile != "" {
		jar, err := cookiejarparser.LoadCookieJarFile(opts.CookieFile)
		if err != nil {
			return nil, fmt.Errorf("loading cookie file %s: %w", opts.CookieFile, err)
		}
		base.Jar = jar
	}

	headers := http.Header{}
	if opts.Token != "" {
		headers.Set("Authorization", "Bearer "+opts.Token)
	}
	client := kong.HTTPClientWithHeaders(base, headers)
	return &client, nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg(msg)
}
