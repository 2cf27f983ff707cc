package datasheet

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several Lodge instances can share one Redis server.
//
// Key pattern: lodge:{instance_name}:{entity}:{uuid}
// Channel pattern: lodge:{instance_name}:{event_type}

// DocumentKey returns the Redis key for a document hash.
// Pattern: lodge:{instance_name}:document:{document_id}
func DocumentKey(instanceName, documentID string) string {
	return fmt.Sprintf("lodge:%s:document:%s", instanceName, documentID)
}

// DocumentGenerationKey returns the key of the per-document write counter.
// Every committed unit of work on a document increments it, so watching it
// serialises writers of the same document.
// Pattern: lodge:{instance_name}:document:{document_id}:gen
func DocumentGenerationKey(instanceName, documentID string) string {
	return fmt.Sprintf("lodge:%s:document:%s:gen", instanceName, documentID)
}

// DocumentValuesKey returns the Redis key for a document's live field values hash.
// Pattern: lodge:{instance_name}:document:{document_id}:values
func DocumentValuesKey(instanceName, documentID string) string {
	return fmt.Sprintf("lodge:%s:document:%s:values", instanceName, documentID)
}

// DocumentRevisionsKey returns the Redis key for a document's revision ZSET.
// Score is the revision sequence, member is the revision ID.
// Pattern: lodge:{instance_name}:document:{document_id}:revisions
func DocumentRevisionsKey(instanceName, documentID string) string {
	return fmt.Sprintf("lodge:%s:document:%s:revisions", instanceName, documentID)
}

// DocumentValueSetsKey returns the Redis key for the slot->value set index of a document.
// Pattern: lodge:{instance_name}:document:{document_id}:valuesets
func DocumentValueSetsKey(instanceName, documentID string) string {
	return fmt.Sprintf("lodge:%s:document:%s:valuesets", instanceName, documentID)
}

// DocumentRatingsKey returns the Redis key for the set of ratings block IDs of a document.
// Pattern: lodge:{instance_name}:document:{document_id}:ratings
func DocumentRatingsKey(instanceName, documentID string) string {
	return fmt.Sprintf("lodge:%s:document:%s:ratings", instanceName, documentID)
}

// DocumentsIndexKey returns the Redis key for the ZSET of all documents, scored by creation time.
// Pattern: lodge:{instance_name}:documents
func DocumentsIndexKey(instanceName string) string {
	return fmt.Sprintf("lodge:%s:documents", instanceName)
}

// TemplateChildrenKey returns the Redis key for the set of documents created from a template.
// Pattern: lodge:{instance_name}:template:{template_id}:children
func TemplateChildrenKey(instanceName, templateID string) string {
	return fmt.Sprintf("lodge:%s:template:%s:children", instanceName, templateID)
}

// RevisionKey returns the Redis key for a revision hash.
// Pattern: lodge:{instance_name}:revision:{revision_id}
func RevisionKey(instanceName, revisionID string) string {
	return fmt.Sprintf("lodge:%s:revision:%s", instanceName, revisionID)
}

// ValueSetKey returns the Redis key for a value set hash.
// Pattern: lodge:{instance_name}:valueset:{value_set_id}
func ValueSetKey(instanceName, valueSetID string) string {
	return fmt.Sprintf("lodge:%s:valueset:%s", instanceName, valueSetID)
}

// ValueSetValuesKey returns the Redis key for a value set's field values hash.
// Pattern: lodge:{instance_name}:valueset:{value_set_id}:values
func ValueSetValuesKey(instanceName, valueSetID string) string {
	return fmt.Sprintf("lodge:%s:valueset:%s:values", instanceName, valueSetID)
}

// ValueSetVariancesKey returns the Redis key for a value set's variance overrides hash.
// Field is the field definition ID, value is the JSON-encoded override.
// Pattern: lodge:{instance_name}:valueset:{value_set_id}:variances
func ValueSetVariancesKey(instanceName, valueSetID string) string {
	return fmt.Sprintf("lodge:%s:valueset:%s:variances", instanceName, valueSetID)
}

// RatingsBlockKey returns the Redis key for a ratings block hash.
// Pattern: lodge:{instance_name}:ratings:{ratings_block_id}
func RatingsBlockKey(instanceName, blockID string) string {
	return fmt.Sprintf("lodge:%s:ratings:%s", instanceName, blockID)
}

// SummaryKey returns the Redis key for a document's derived summary projection.
// Pattern: lodge:{instance_name}:summary:{document_id}
func SummaryKey(instanceName, documentID string) string {
	return fmt.Sprintf("lodge:%s:summary:%s", instanceName, documentID)
}

// RebuildQueueKey returns the Redis list of documents awaiting a projection rebuild.
// Pattern: lodge:{instance_name}:rebuild:queue
func RebuildQueueKey(instanceName string) string {
	return fmt.Sprintf("lodge:%s:rebuild:queue", instanceName)
}

// RebuildProcessingKey returns the Redis list of rebuilds claimed by one worker but not yet finished.
// Pattern: lodge:{instance_name}:rebuild:processing:{worker_id}
func RebuildProcessingKey(instanceName, workerID string) string {
	return fmt.Sprintf("lodge:%s:rebuild:processing:%s", instanceName, workerID)
}

// RebuildWorkersKey returns the Redis set of worker IDs that may hold claimed rebuilds.
// Pattern: lodge:{instance_name}:rebuild:workers
func RebuildWorkersKey(instanceName string) string {
	return fmt.Sprintf("lodge:%s:rebuild:workers", instanceName)
}

// RebuildHeartbeatKey returns the expiring key that marks a worker as alive.
// Pattern: lodge:{instance_name}:rebuild:heartbeat:{worker_id}
func RebuildHeartbeatKey(instanceName, workerID string) string {
	return fmt.Sprintf("lodge:%s:rebuild:heartbeat:%s", instanceName, workerID)
}

// RebuildPendingKey returns the Redis set used to de-duplicate queued rebuilds.
// Pattern: lodge:{instance_name}:rebuild:pending
func RebuildPendingKey(instanceName string) string {
	return fmt.Sprintf("lodge:%s:rebuild:pending", instanceName)
}

// NotificationsChannel returns the Pub/Sub channel for user notifications.
// Pattern: lodge:{instance_name}:notifications
func NotificationsChannel(instanceName string) string {
	return fmt.Sprintf("lodge:%s:notifications", instanceName)
}

// RebuildKickChannel returns the Pub/Sub channel that wakes rebuild workers.
// Pattern: lodge:{instance_name}:rebuild_kick
func RebuildKickChannel(instanceName string) string {
	return fmt.Sprintf("lodge:%s:rebuild_kick", instanceName)
}
