package verifier

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/form3tech-oss/pact-compat/internal/app/contract"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

// StateHandler prepares and removes a named provider state in-process, in place of
// the state setup and cleanup URLs. Either function may be nil.
type StateHandler struct {
	Setup    func(ctx context.Context, params map[string]interface{}) error
	Teardown func(ctx context.Context, params map[string]interface{}) error
}

func statePayload(state contract.ProviderState) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "state", state.Name)
	if err != nil {
		return nil, err
	}
	params := state.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	return sjson.SetBytes(body, "params", params)
}

func (r *run) callStateURL(ctx context.Context, method, target string, state contract.ProviderState) error {
	payload, err := statePayload(state)
	if err != nil {
		return errors.Wrapf(err, "unable to build payload for state %q", state.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "unable to create request for state %q", state.Name)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	for k, v := range r.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "state %q", state.Name)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("state %q: %s returned %d", state.Name, target, resp.StatusCode)
	}
	return nil
}

// setupStates prepares every state of the interaction in order and returns the states
// that were set up, which need cleaning up even when a later one failed.
func (r *run) setupStates(ctx context.Context, states []contract.ProviderState) ([]contract.ProviderState, error) {
	var done []contract.ProviderState
	for _, state := range states {
		if h, ok := r.opts.StateHandlers[state.Name]; ok {
			if h.Setup != nil {
				if err := h.Setup(ctx, state.Params); err != nil {
					return done, errors.Wrapf(err, "state %q", state.Name)
				}
			}
		} else if r.opts.StateSetupURL != "" {
			if err := r.callStateURL(ctx, http.MethodPost, r.opts.StateSetupURL, state); err != nil {
				return done, err
			}
		} else {
			log.WithFields(log.Fields{"state": state.Name}).Debug("no setup configured for provider state")
		}
		done = append(done, state)
	}
	return done, nil
}

// cleanupStates removes states in reverse order. Failures are logged and otherwise ignored.
func (r *run) cleanupStates(ctx context.Context, states []contract.ProviderState) {
	for n := len(states) - 1; n >= 0; n-- {
		state := states[n]
		var err error
		if h, ok := r.opts.StateHandlers[state.Name]; ok {
			if h.Teardown != nil {
				err = h.Teardown(ctx, state.Params)
			}
		} else if r.opts.StateCleanupURL != "" {
			err = r.callStateURL(ctx, http.MethodDelete, r.opts.StateCleanupURL, state)
		}
		if err != nil {
			log.WithFields(log.Fields{"state": state.Name}).WithError(err).Warn("provider state cleanup failed")
		}
	}
}
