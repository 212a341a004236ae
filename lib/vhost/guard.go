package vhost

import (
	"fmt"

	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// NotFound returns the error reported for an unknown vhost
func NotFound(vhost string) error {
	return store.NewError(store.RetCScopeNotFound, fmt.Sprintf("vhost '%s' does not exist", vhost))
}

// StaticGuard is a VHostGuard backed by a set of known vhosts. It is safe for
// concurrent use, vhosts may be added and removed at any time.
type StaticGuard struct {
	vhosts *xsync.MapOf[string, struct{}]
}

// NewStaticGuard returns a guard that knows the given vhosts
func NewStaticGuard(vhosts ...string) *StaticGuard {
	g := &StaticGuard{vhosts: xsync.NewMapOf[string, struct{}]()}
	for _, v := range vhosts {
		g.Add(v)
	}
	return g
}

// Add registers vhost
func (g *StaticGuard) Add(vhost string) {
	g.vhosts.Store(vhost, struct{}{})
}

// Remove unregisters vhost. Parameters of the vhost are not touched.
func (g *StaticGuard) Remove(vhost string) {
	g.vhosts.Delete(vhost)
}

// Has reports whether vhost is registered
func (g *StaticGuard) Has(vhost string) bool {
	_, ok := g.vhosts.Load(vhost)
	return ok
}

// Len returns the number of registered vhosts
func (g *StaticGuard) Len() int {
	return g.vhosts.Size()
}

func (g *StaticGuard) AssertExists(vhost string) error {
	if !g.Has(vhost) {
		return NotFound(vhost)
	}
	return nil
}

// GuardFunc adapts a function to a VHostGuard
type GuardFunc func(vhost string) error

func (f GuardFunc) AssertExists(vhost string) error {
	return f(vhost)
}

// AllowAll accepts every vhost
var AllowAll = GuardFunc(func(string) error { return nil })
