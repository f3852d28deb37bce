// Package generic provides the contract shared by every sink variant: the
// registry that keeps live sinks reachable, the lifecycle base they embed,
// and wrappers that compose over any sink implementation.
package generic
