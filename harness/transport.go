package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/evergreen-ci/utility"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/model"
)

// ClientTransport delivers one configuration to a client and waits for
// its measurement. Dispatch honors the context's deadline and
// cancellation; a dispatch error means the configuration produced no
// measurement.
type ClientTransport interface {
	Dispatch(ctx context.Context, client *model.ClientStatus, cfg model.TestConfiguration) (*model.TestResult, error)
}

// HTTPTransport dispatches configurations by POSTing them to the
// client's registered callback endpoint and decoding the measurement
// from the response.
type HTTPTransport struct{}

// NewHTTPTransport constructs the default transport.
func NewHTTPTransport() *HTTPTransport { return &HTTPTransport{} }

func (t *HTTPTransport) Dispatch(ctx context.Context, client *model.ClientStatus, cfg model.TestConfiguration) (*model.TestResult, error) {
	if client.Endpoint == "" {
		return nil, errors.Errorf("client '%s' has no callback endpoint", client.ClientID)
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "problem marshalling configuration")
	}

	url := fmt.Sprintf("%s/execute", client.Endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "problem building dispatch request")
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := utility.GetHTTPClient()
	defer utility.PutHTTPClient(httpClient)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "problem dispatching config '%s' to client '%s'", cfg.ID, client.ClientID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("client '%s' returned status %d for config '%s': %s",
			client.ClientID, resp.StatusCode, cfg.ID, string(body))
	}

	result := &model.TestResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, errors.Wrapf(err, "problem decoding result for config '%s'", cfg.ID)
	}
	return result, nil
}
