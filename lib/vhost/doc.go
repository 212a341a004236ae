/*
Package vhost provides VHostGuard implementations for the parameter store.

The parameter store does not own virtual hosts. It only asks a guard whether a
vhost exists before scoped writes and literal vhost reads. StaticGuard keeps an
in memory set (filled from configuration), GuardFunc wraps any lookup function.
*/
package vhost
