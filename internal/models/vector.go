package models

import "fmt"

// VectorLogicalID builds the stable payload identifier for a chunk's
// vector point, surviving the store's opaque point IDs.
func VectorLogicalID(documentID int64, chunkIndex int) string {
	return fmt.Sprintf("%d_%d", documentID, chunkIndex)
}
