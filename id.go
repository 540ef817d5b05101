package tiersale

import "github.com/xraph/tiersale/id"

// ID is the primary identifier type for all tiersale entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
