// Package metastore exposes project metadata consumed by the gateway.
// The backing store lives outside this service; only the permission
// contract is visible here.
package metastore

import "context"

type AccessKeyType int

const (
	MasterKey AccessKeyType = iota
	ReadKey
	WriteKey
)

func (t AccessKeyType) String() string {
	switch t {
	case MasterKey:
		return "master_key"
	case ReadKey:
		return "read_key"
	case WriteKey:
		return "write_key"
	default:
		return "unknown"
	}
}

// Metastore answers whether apiKey grants keyType access to project.
type Metastore interface {
	CheckPermission(ctx context.Context, project string, keyType AccessKeyType, apiKey string) (bool, error)
}
