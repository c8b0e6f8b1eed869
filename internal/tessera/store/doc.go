// Package store provides the storage layer for the tessera service.
//
// It covers three concerns: vector storage in Milvus for dense retrieval,
// object storage in MinIO for uploaded files and sparse index snapshots, and
// relational storage for document and chat metadata.
package store
