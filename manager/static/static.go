// Package static provides the collaborators of the manager from fixed
// configuration: an authorizer with read-only callers, a site to zone map
// and a set of container foundations.
package static

import (
	"context"
	"strings"

	"github.com/contractor/addrspace/log"
	"github.com/sirupsen/logrus"
)

// Authorizer refuses every mutating operation to the read-only callers and
// allows it to everyone else.
type Authorizer struct {
	readOnly map[string]struct{}
}

// NewAuthorizer returns an Authorizer with the given read-only callers.
func NewAuthorizer(readOnlyCallers []string) *Authorizer {
	a := &Authorizer{readOnly: make(map[string]struct{}, len(readOnlyCallers))}
	for _, c := range readOnlyCallers {
		a.readOnly[c] = struct{}{}
	}
	return a
}

// Authorize implements manager.Authorizer.
func (a *Authorizer) Authorize(ctx context.Context, caller, operation string, targetIDs []string, action string) (bool, error) {
	_, readOnly := a.readOnly[caller]
	log.G(ctx).WithFields(logrus.Fields{
		"caller":    caller,
		"operation": operation,
		"action":    action,
		"allowed":   !readOnly,
	}).Debug("authorization")
	return !readOnly, nil
}

// Zones maps site ids to DNS zones.
type Zones map[string]string

// ZoneFqdnForSite implements hosts.ZoneResolver. Sites missing from the
// map have no zone.
func (z Zones) ZoneFqdnForSite(_ context.Context, siteID string) (string, error) {
	return strings.TrimSuffix(z[siteID], "."), nil
}

// Foundations is the set of foundations that address their hosts
// themselves.
type Foundations map[string]struct{}

// NewFoundations returns the set of the given foundation ids.
func NewFoundations(ids []string) Foundations {
	f := make(Foundations, len(ids))
	for _, id := range ids {
		f[id] = struct{}{}
	}
	return f
}

// IsContainerFoundation implements allocator.FoundationResolver.
func (f Foundations) IsContainerFoundation(_ context.Context, foundationID string) (bool, error) {
	_, ok := f[foundationID]
	return ok, nil
}
