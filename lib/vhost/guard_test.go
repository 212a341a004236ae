package vhost

import (
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/stretchr/testify/assert"
)

func TestStaticGuard(t *testing.T) {
	g := NewStaticGuard("v1", "v2")

	assert.NoError(t, g.AssertExists("v1"))
	assert.Equal(t, 2, g.Len())

	err := g.AssertExists("v3")
	assert.ErrorIs(t, err, store.ErrScopeNotFound)
	assert.Contains(t, err.Error(), "v3")

	g.Add("v3")
	assert.NoError(t, g.AssertExists("v3"))

	g.Remove("v1")
	assert.False(t, g.Has("v1"))
	assert.ErrorIs(t, g.AssertExists("v1"), store.ErrScopeNotFound)
}

func TestStaticGuardConcurrent(t *testing.T) {
	g := NewStaticGuard()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.Add("v")
				_ = g.AssertExists("v")
				g.Remove("v")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, g.Len())
}

func TestGuardFunc(t *testing.T) {
	errDown := errors.New("registry down")
	g := GuardFunc(func(vhost string) error {
		if vhost == "bad" {
			return errDown
		}
		return nil
	})

	assert.NoError(t, g.AssertExists("ok"))
	assert.ErrorIs(t, g.AssertExists("bad"), errDown)
	assert.NoError(t, AllowAll.AssertExists("anything"))
}
