package runtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/aretw0/chatflow/pkg/domain"
)

// DefaultFailureNotice is sent when an apiCall node has no errorMessage of its own.
const DefaultFailureNotice = "Sorry, something went wrong. Please try again later."

// errNoInvoker is reported when an apiCall node runs without an invoker configured.
var errNoInvoker = errors.New("no external invoker configured")

// RetryPolicy bounds the attempts of an apiCall.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts; values below 1 mean a single attempt.
	MaxAttempts int

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// AttemptTimeout bounds each attempt independently.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns three attempts with exponential backoff from 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    10 * time.Second,
	}
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	if p.BackoffMultiplier > 0 {
		b.Multiplier = p.BackoffMultiplier
	}
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

func (r *stepRun) apiCall(node *domain.Node) (string, outcome, error) {
	props, err := domain.DecodeProperties[domain.APICallProps](*node)
	if err != nil {
		r.abort(err)
		return "", finish, nil
	}

	req := r.renderRequest(props)
	resp, attempts, err := r.exec.invoke(r.ctx, r.session, node, req)
	if err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return "", finish, ctxErr
		}
		callErr := &domain.ExternalCallError{RequestName: req.Name, Attempts: attempts, Err: err}
		var se *domain.StatusError
		if errors.As(err, &se) {
			callErr.StatusCode = se.StatusCode
		}

		notice := props.ErrorMessage
		if notice == "" {
			notice = DefaultFailureNotice
		}
		r.send(node, notice)
		r.abort(callErr)
		return "", finish, nil
	}

	r.merge(props, resp.Body)
	return r.follow(node)
}

func (r *stepRun) renderRequest(props domain.APICallProps) domain.ExternalRequest {
	vars := r.session.Variables
	method := strings.ToUpper(props.Method)
	if method == "" {
		method = http.MethodGet
	}
	req := domain.ExternalRequest{
		Name:   props.RequestName,
		URL:    Render(props.URL, vars),
		Method: method,
		Body:   Render(props.Body, vars),
	}
	if len(props.Headers) > 0 {
		req.Headers = make(map[string]string, len(props.Headers))
		for k, v := range props.Headers {
			req.Headers[k] = Render(v, vars)
		}
	}
	return req
}

// merge stores response-derived variables: each responseMapping entry is a gjson path,
// and propertyName receives the whole body.
func (r *stepRun) merge(props domain.APICallProps, body []byte) {
	for name, path := range props.ResponseMapping {
		res := gjson.GetBytes(body, path)
		if res.Exists() {
			r.session.Variables[name] = res.String()
		}
	}
	if props.PropertyName != "" {
		r.session.Variables[props.PropertyName] = strings.TrimSpace(string(body))
	}
}

// invoke runs the request under the retry policy. Non-retryable statuses stop at once.
func (x *Executor) invoke(ctx context.Context, s *domain.Session, node *domain.Node, req domain.ExternalRequest) (domain.ExternalResponse, int, error) {
	if x.invoker == nil {
		return domain.ExternalResponse{}, 0, errNoInvoker
	}

	attempt := 0
	op := func() (domain.ExternalResponse, error) {
		attempt++
		event := &domain.ExternalEvent{
			EventBase:   x.base(domain.EventExternalCall, s),
			NodeID:      node.ID,
			RequestName: req.Name,
			Attempt:     attempt,
		}
		if x.hooks.OnExternalCall != nil {
			x.hooks.OnExternalCall(ctx, event)
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if x.policy.AttemptTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, x.policy.AttemptTimeout)
		}
		started := x.now()
		resp, err := x.invoker.Invoke(callCtx, req)
		cancel()

		if x.hooks.OnExternalReturn != nil {
			ret := *event
			ret.Type = domain.EventExternalReturn
			ret.Timestamp = x.now()
			ret.Duration = ret.Timestamp.Sub(started)
			ret.StatusCode = resp.StatusCode
			ret.IsError = err != nil
			var se *domain.StatusError
			if errors.As(err, &se) {
				ret.StatusCode = se.StatusCode
			}
			x.hooks.OnExternalReturn(ctx, &ret)
		}

		if err != nil {
			var se *domain.StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return resp, backoff.Permanent(err)
			}
			return resp, err
		}
		return resp, nil
	}

	notify := func(err error, wait time.Duration) {
		x.logger.Warn("external call failed, retrying",
			"project_id", s.ProjectID,
			"sender_id", s.SenderID,
			"node_id", node.ID,
			"request", req.Name,
			"attempt", attempt,
			"wait", wait,
			"err", err,
		)
	}

	resp, err := backoff.RetryNotifyWithData(op, x.policy.newBackOff(ctx), notify)
	return resp, attempt, err
}
