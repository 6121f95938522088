package domain

import "fmt"

// User records when a trader address was first and last seen.
type User struct {
	ID                 string `json:"_id" bson:"_id"` // lowercased address
	CreatedAtTimestamp int64  `json:"createdAtTimestamp" bson:"createdAtTimestamp"`
	UpdatedAtTimestamp int64  `json:"updatedAtTimestamp" bson:"updatedAtTimestamp"`
}

// SyncProgress is the ingestion cursor for one contract on one chain.
// LastBlock is the last fully processed block. When PartialBlock is not
// zero, the events of that block up to and including PartialLogIndex were
// applied too.
type SyncProgress struct {
	ChainID         int64  `json:"chainId" bson:"chainId"`
	Contract        string `json:"contract" bson:"contract"`
	LastBlock       uint64 `json:"lastBlock" bson:"lastBlock"`
	PartialBlock    uint64 `json:"partialBlock" bson:"partialBlock"`
	PartialLogIndex uint   `json:"partialLogIndex" bson:"partialLogIndex"`
	UpdatedAt       int64  `json:"updatedAt" bson:"updatedAt"` // unix seconds
}

// SyncProgressID renders the storage id for a progress record.
func SyncProgressID(chainID int64, contract string) string {
	return fmt.Sprintf("%d:%s", chainID, contract)
}
