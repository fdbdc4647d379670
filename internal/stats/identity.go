package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Resolver recovers the stable job identity from an event.
type Resolver struct{}

// NewResolver returns a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the explicit JobInfo.UUID when present. Otherwise it
// decodes the payload's command into a fresh value of the handler's own
// type and asks it for its identity. Unknown fields, a mismatched
// commandName or an empty identity are all ErrIdentityResolution.
func (r *Resolver) Resolve(job JobInfo) (string, error) {
	if job.UUID != "" {
		return job.UUID, nil
	}
	if job.Handler == nil {
		return "", fmt.Errorf("%w: no handler type", ErrIdentityResolution)
	}
	if len(job.Payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrIdentityResolution)
	}

	var p Payload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return "", fmt.Errorf("%w: decode payload: %v", ErrIdentityResolution, err)
	}
	if p.Data.CommandName != job.Name {
		return "", fmt.Errorf("%w: payload names %q, event names %q", ErrIdentityResolution, p.Data.CommandName, job.Name)
	}
	if len(p.Data.Command) == 0 {
		return "", fmt.Errorf("%w: payload has no command", ErrIdentityResolution)
	}

	t := reflect.TypeOf(job.Handler)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	target := reflect.New(t)

	dec := json.NewDecoder(bytes.NewReader(p.Data.Command))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target.Interface()); err != nil {
		return "", fmt.Errorf("%w: decode %s: %v", ErrIdentityResolution, t, err)
	}

	id, ok := target.Interface().(Identifiable)
	if !ok {
		return "", fmt.Errorf("%w: %s does not expose an identity", ErrIdentityResolution, t)
	}
	if id.JobUUID() == "" {
		return "", fmt.Errorf("%w: %s carries an empty identity", ErrIdentityResolution, t)
	}
	return id.JobUUID(), nil
}
