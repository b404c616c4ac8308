package graph

import (
	"context"
	"errors"
)

// Client is the minimal contract the referral graph needs from a graph
// database.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

type Result struct {
	Records []Record
}

type Record map[string]any

// String returns the string stored under key, or "" when it is missing or
// null.
func (r Record) String(key string) string {
	v, _ := r[key].(string)
	return v
}

type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

var ErrMissingURI = errors.New("graph URI is required")
