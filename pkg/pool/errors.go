// Package pool provides resource pooling.
package pool

import "errors"

var (
	// ErrPoolClosed indicates the pool has been released.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrPoolNotFound indicates no pool is registered under the name.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrPoolAlreadyExists indicates a pool is already registered under the name.
	ErrPoolAlreadyExists = errors.New("pool already exists")

	// ErrPoolOverload indicates the pool is full and nonblocking submission failed.
	ErrPoolOverload = errors.New("pool overloaded")
)
