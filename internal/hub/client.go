package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// UnitTypeShutter is the unit type the hub reports for motorized shutters.
const UnitTypeShutter = "shutter"

// Unit is a single device known to the hub.
type Unit struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type unitStatus struct {
	CurrStatus int `json:"currStatus"`
}

type actionRequest struct {
	ID    int `json:"id"`
	Value int `json:"value"`
}

// Client talks to an iFeel shutter hub on the local network. All calls
// share the injected Session; Authenticate refreshes its cookie, every
// other call relies on it.
type Client struct {
	session *Session
	baseURL string

	email    string
	password string
}

func NewClient(session *Session, host, email, password string) *Client {
	return &Client{
		session:  session,
		baseURL:  fmt.Sprintf("http://%s/", host),
		email:    email,
		password: password,
	}
}

// Authenticate logs in against the hub. The hub answers with a session
// cookie the Session jar picks up; the previous cookie stays usable if
// this attempt fails.
func (c *Client) Authenticate(ctx context.Context) error {
	q := url.Values{}
	q.Set("user", c.email)
	q.Set("psw", c.password)

	res, err := c.get(ctx, "auth/login?"+q.Encode())
	if err != nil {
		return errors.Wrap(err, "hub: login request failed")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.Errorf("hub: login rejected with status %d", res.StatusCode)
	}

	logrus.Debug("hub: session authenticated")
	return nil
}

// KeepSessionAlive re-authenticates on a fixed interval so the session
// cookie never expires. A failed attempt is logged; the next tick is
// the retry. Blocks until ctx is done.
func (c *Client) KeepSessionAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Authenticate(ctx); err != nil {
				logrus.Errorf("hub: session refresh failed: %s", err)
			}
		}
	}
}

// ListUnits returns every device known to the hub.
func (c *Client) ListUnits(ctx context.Context) ([]Unit, error) {
	res, err := c.get(ctx, "units/listUnits")
	if err != nil {
		return nil, errors.Wrap(err, "hub: list units request failed")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("hub: list units returned status %d", res.StatusCode)
	}

	var units []Unit
	if err := json.NewDecoder(res.Body).Decode(&units); err != nil {
		return nil, errors.Wrap(err, "hub: list units decode failed")
	}

	return units, nil
}

// Shutters returns the shutter subset of ListUnits.
func (c *Client) Shutters(ctx context.Context) ([]Unit, error) {
	units, err := c.ListUnits(ctx)
	if err != nil {
		return nil, err
	}

	shutters := units[:0]
	for _, u := range units {
		if u.Type == UnitTypeShutter {
			shutters = append(shutters, u)
		}
	}

	return shutters, nil
}

// Position reads the current position percentage of a unit.
func (c *Client) Position(ctx context.Context, id int) (int, error) {
	res, err := c.get(ctx, fmt.Sprintf("units/getUnitByID?id=%d", id))
	if err != nil {
		return 0, errors.Wrapf(err, "hub: unit %d status request failed", id)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, errors.Errorf("hub: unit %d status returned status %d", id, res.StatusCode)
	}

	var status unitStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return 0, errors.Wrapf(err, "hub: unit %d status decode failed", id)
	}

	return status.CurrStatus, nil
}

// SetPosition commands a unit to a new position. The hub acknowledges
// before the shutter finishes moving; only the response status is
// inspected.
func (c *Client) SetPosition(ctx context.Context, id int, value int) error {
	payload, err := json.Marshal(actionRequest{ID: id, Value: value})
	if err != nil {
		return errors.Wrapf(err, "hub: unit %d action encode failed", id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"units/action", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "hub: unit %d action request failed", id)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.session.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "hub: unit %d action failed", id)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.Errorf("hub: unit %d action returned status %d", id, res.StatusCode)
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	return c.session.http.Do(req)
}
