/*
Package params implements the runtime parameter store on top of a transactional
key value store (see package store).

Parameters are either global, identified by a single id, or scoped to a virtual
host and component:

	p := params.NewStore(lstore.NewLocalStore(factory, nil), guard)

	res, err := p.SetScoped("v1", "policy", "alpha", []byte(`{"max":10}`))
	// res.Created == true

	rec, ok, err := p.Lookup(params.ScopedKey("v1", "policy", "alpha"))

	n, err := p.RemoveMatching(params.Pattern{
		VHost:     params.Literal("v1"),
		Component: params.Any,
		Name:      params.Any,
	})

Every mutation and LookupOrSet run as optimistic transactions. If a unit keeps
conflicting it fails with an error matching store.ErrTransactionAborted. Writes
to a scoped key and reads for a literal vhost consult the VHostGuard first and
fail with store.ErrScopeNotFound if the vhost does not exist. Removals never
consult the guard.

Lookup, GetAll and GetAllScoped are not transactional. They never observe a
partially committed transaction but may miss one that commits concurrently.
*/
package params
