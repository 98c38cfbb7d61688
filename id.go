package sps

import "github.com/zephraph/sps/id"

// ID is the identifier type shared by all entities.
type ID = id.ID

// Prefix identifies the entity type encoded in an ID.
type Prefix = id.Prefix
