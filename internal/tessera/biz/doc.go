// Package biz implements the retrieval-and-answering pipeline: document
// loading and chunking, dense and sparse index maintenance, hybrid retrieval
// with query rewriting, answer caching, and answer synthesis in one-shot and
// streaming modes.
package biz
