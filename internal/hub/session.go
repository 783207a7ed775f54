package hub

import (
	"net/http"
	"net/http/cookiejar"

	"github.com/pkg/errors"
)

// Session holds the cookie-authenticated HTTP state shared by every
// hub call. The hub issues a session cookie on login valid for roughly
// 30 minutes; the jar is written by Client.Authenticate only and read
// by every request.
type Session struct {
	http *http.Client
}

func NewSession() (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "hub: cookie jar init failed")
	}

	return &Session{http: &http.Client{Jar: jar}}, nil
}
