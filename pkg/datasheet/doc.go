// Package datasheet provides type-safe Go definitions, Redis schema patterns and
// transactional storage for Lodge datasheets.
//
// # Overview
//
// A datasheet is a structured technical document (for example an equipment
// specification) that moves through an authoring and review lifecycle. Each
// document carries header attributes, an ordered layout of field definitions and
// the live values of those fields. Every edit mints an immutable, gapless,
// sequence-numbered Revision holding a versioned JSON Snapshot of the document.
//
// Alongside the live values a document owns value sets: one Requirement set
// holding the canonical targets, zero or more Offered sets (one per
// counterparty) and at most one AsBuilt set. Offered and AsBuilt values can be
// annotated with variance overrides. Ratings blocks are satellite records that
// can be locked once the document is approved.
//
// # Units of Work
//
// Client.Update runs a function inside a per-document unit of work. Reads go
// through a Redis connection that WATCHes the document's generation key and
// revision ZSET; writes are staged on the Tx and applied in a single MULTI/EXEC
// that also bumps the generation key. Two units of work on the same document
// therefore never interleave: the loser's EXEC aborts and the whole function is
// retried with exponential backoff. Units of work on different documents never
// contend.
//
// Hooks registered with Tx.AfterCommit run only after a successful commit.
//
// # Redis Schema
//
// All Redis keys follow the pattern: lodge:{instance_name}:{entity}:{uuid}
//
// Documents: lodge:{instance_name}:document:{document_id}
// Live values: lodge:{instance_name}:document:{document_id}:values
// Revision index: lodge:{instance_name}:document:{document_id}:revisions
// Revisions: lodge:{instance_name}:revision:{revision_id}
// Value sets: lodge:{instance_name}:valueset:{value_set_id}
// Ratings blocks: lodge:{instance_name}:ratings:{ratings_block_id}
//
// Pub/Sub channels: lodge:{instance_name}:notifications and
// lodge:{instance_name}:rebuild_kick
//
// # Usage Example
//
//	client, err := datasheet.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Update(ctx, documentID, func(tx *datasheet.Tx) error {
//		if _, err := tx.Document(ctx); err != nil {
//			return err
//		}
//		value := "42"
//		tx.SetFieldValue("rated_power", &value)
//		return nil
//	})
package datasheet
