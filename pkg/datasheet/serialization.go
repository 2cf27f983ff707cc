package datasheet

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Scalar fields map to individual hash fields so they stay inspectable with
// redis-cli. Nested structures (layout, ratings) are JSON-encoded into a single
// hash field.

// DocumentToHash converts a Document struct to a Redis hash format.
// The layout is JSON-encoded.
func DocumentToHash(d *Document) (map[string]interface{}, error) {
	layout := d.Layout
	if layout == nil {
		layout = []Subsection{}
	}
	layoutJSON, err := json.Marshal(layout)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal layout: %w", err)
	}

	return map[string]interface{}{
		"id":                 d.ID,
		"tenant_id":          d.TenantID,
		"name":               d.Header.Name,
		"tag":                d.Header.Tag,
		"project_id":         d.Header.ProjectID,
		"client_id":          d.Header.ClientID,
		"discipline":         d.Header.Discipline,
		"status":             string(d.Status),
		"is_template":        strconv.FormatBool(d.IsTemplate),
		"parent_document_id": d.ParentDocumentID,
		"layout":             string(layoutJSON),
		"created_by":         d.CreatedBy,
		"created_at_ms":      d.CreatedAtMs,
		"updated_by":         d.UpdatedBy,
		"updated_at_ms":      d.UpdatedAtMs,
		"verified_by":        d.VerifiedBy,
		"verified_at_ms":     d.VerifiedAtMs,
		"approved_by":        d.ApprovedBy,
		"approved_at_ms":     d.ApprovedAtMs,
		"rejected_by":        d.RejectedBy,
		"rejected_at_ms":     d.RejectedAtMs,
		"rejection_comment":  d.RejectionComment,
	}, nil
}

// HashToDocument converts a Redis hash to a Document struct.
func HashToDocument(hash map[string]string) (*Document, error) {
	var layout []Subsection
	if layoutJSON := hash["layout"]; layoutJSON != "" {
		if err := json.Unmarshal([]byte(layoutJSON), &layout); err != nil {
			return nil, fmt.Errorf("failed to unmarshal layout: %w", err)
		}
	}
	if layout == nil {
		layout = []Subsection{}
	}

	isTemplate, _ := strconv.ParseBool(hash["is_template"])

	return &Document{
		ID:       hash["id"],
		TenantID: hash["tenant_id"],
		Header: Header{
			Name:       hash["name"],
			Tag:        hash["tag"],
			ProjectID:  hash["project_id"],
			ClientID:   hash["client_id"],
			Discipline: hash["discipline"],
		},
		Status:           DocumentStatus(hash["status"]),
		IsTemplate:       isTemplate,
		ParentDocumentID: hash["parent_document_id"],
		Layout:           layout,
		CreatedBy:        hash["created_by"],
		CreatedAtMs:      parseMs(hash["created_at_ms"]),
		UpdatedBy:        hash["updated_by"],
		UpdatedAtMs:      parseMs(hash["updated_at_ms"]),
		VerifiedBy:       hash["verified_by"],
		VerifiedAtMs:     parseMs(hash["verified_at_ms"]),
		ApprovedBy:       hash["approved_by"],
		ApprovedAtMs:     parseMs(hash["approved_at_ms"]),
		RejectedBy:       hash["rejected_by"],
		RejectedAtMs:     parseMs(hash["rejected_at_ms"]),
		RejectionComment: hash["rejection_comment"],
	}, nil
}

// RevisionToHash converts a Revision struct to a Redis hash format.
// The snapshot is stored verbatim as a JSON string.
func RevisionToHash(r *Revision) map[string]interface{} {
	return map[string]interface{}{
		"id":                     r.ID,
		"document_id":            r.DocumentID,
		"sequence":               r.Sequence,
		"snapshot":               string(r.Snapshot),
		"created_by":             r.CreatedBy,
		"created_at_ms":          r.CreatedAtMs,
		"status":                 string(r.Status),
		"comment":                r.Comment,
		"restored_from_id":       r.RestoredFromID,
		"restored_from_sequence": r.RestoredFromSequence,
	}
}

// revisionSummaryFields are the hash fields read when listing revisions.
var revisionSummaryFields = []string{
	"id", "document_id", "sequence", "created_by", "created_at_ms",
	"status", "comment", "restored_from_id", "restored_from_sequence",
}

// HashToRevision converts a Redis hash to a Revision struct.
func HashToRevision(hash map[string]string) (*Revision, error) {
	sequence, err := strconv.Atoi(hash["sequence"])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence field: %w", err)
	}
	restoredSeq, _ := strconv.Atoi(hash["restored_from_sequence"])

	var snapshot []byte
	if s := hash["snapshot"]; s != "" {
		snapshot = []byte(s)
	}

	return &Revision{
		ID:                   hash["id"],
		DocumentID:           hash["document_id"],
		Sequence:             sequence,
		Snapshot:             snapshot,
		CreatedBy:            hash["created_by"],
		CreatedAtMs:          parseMs(hash["created_at_ms"]),
		Status:               DocumentStatus(hash["status"]),
		Comment:              hash["comment"],
		RestoredFromID:       hash["restored_from_id"],
		RestoredFromSequence: restoredSeq,
	}, nil
}

// ValueSetToHash converts a ValueSet struct to a Redis hash format.
func ValueSetToHash(v *ValueSet) map[string]interface{} {
	return map[string]interface{}{
		"id":             v.ID,
		"document_id":    v.DocumentID,
		"context":        string(v.Context),
		"party_id":       v.PartyID,
		"status":         string(v.Status),
		"created_by":     v.CreatedBy,
		"created_at_ms":  v.CreatedAtMs,
		"locked_by":      v.LockedBy,
		"locked_at_ms":   v.LockedAtMs,
		"verified_by":    v.VerifiedBy,
		"verified_at_ms": v.VerifiedAtMs,
	}
}

// HashToValueSet converts a Redis hash to a ValueSet struct.
func HashToValueSet(hash map[string]string) *ValueSet {
	return &ValueSet{
		ID:           hash["id"],
		DocumentID:   hash["document_id"],
		Context:      ValueSetContext(hash["context"]),
		PartyID:      hash["party_id"],
		Status:       ValueSetStatus(hash["status"]),
		CreatedBy:    hash["created_by"],
		CreatedAtMs:  parseMs(hash["created_at_ms"]),
		LockedBy:     hash["locked_by"],
		LockedAtMs:   parseMs(hash["locked_at_ms"]),
		VerifiedBy:   hash["verified_by"],
		VerifiedAtMs: parseMs(hash["verified_at_ms"]),
	}
}

// RatingsBlockToHash converts a RatingsBlock struct to a Redis hash format.
// The ratings map is JSON-encoded.
func RatingsBlockToHash(r *RatingsBlock) (map[string]interface{}, error) {
	ratings := r.Ratings
	if ratings == nil {
		ratings = map[string]string{}
	}
	ratingsJSON, err := json.Marshal(ratings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ratings: %w", err)
	}
	return map[string]interface{}{
		"id":            r.ID,
		"document_id":   r.DocumentID,
		"title":         r.Title,
		"ratings":       string(ratingsJSON),
		"created_by":    r.CreatedBy,
		"created_at_ms": r.CreatedAtMs,
		"locked_by":     r.LockedBy,
		"locked_at_ms":  r.LockedAtMs,
	}, nil
}

// HashToRatingsBlock converts a Redis hash to a RatingsBlock struct.
func HashToRatingsBlock(hash map[string]string) (*RatingsBlock, error) {
	ratings := map[string]string{}
	if s := hash["ratings"]; s != "" {
		if err := json.Unmarshal([]byte(s), &ratings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ratings: %w", err)
		}
	}
	return &RatingsBlock{
		ID:          hash["id"],
		DocumentID:  hash["document_id"],
		Title:       hash["title"],
		Ratings:     ratings,
		CreatedBy:   hash["created_by"],
		CreatedAtMs: parseMs(hash["created_at_ms"]),
		LockedBy:    hash["locked_by"],
		LockedAtMs:  parseMs(hash["locked_at_ms"]),
	}, nil
}

// SummaryToHash converts a DocumentSummary struct to a Redis hash format.
func SummaryToHash(s *DocumentSummary) map[string]interface{} {
	return map[string]interface{}{
		"document_id":     s.DocumentID,
		"tenant_id":       s.TenantID,
		"name":            s.Name,
		"tag":             s.Tag,
		"status":          string(s.Status),
		"is_template":     strconv.FormatBool(s.IsTemplate),
		"template_name":   s.TemplateName,
		"revision_count":  s.RevisionCount,
		"latest_sequence": s.LatestSequence,
		"value_set_count": s.ValueSetCount,
		"rebuilt_at_ms":   s.RebuiltAtMs,
		"generation":      s.Generation,
	}
}

// HashToSummary converts a Redis hash to a DocumentSummary struct.
func HashToSummary(hash map[string]string) *DocumentSummary {
	isTemplate, _ := strconv.ParseBool(hash["is_template"])
	revisionCount, _ := strconv.Atoi(hash["revision_count"])
	latest, _ := strconv.Atoi(hash["latest_sequence"])
	valueSets, _ := strconv.Atoi(hash["value_set_count"])
	return &DocumentSummary{
		DocumentID:     hash["document_id"],
		TenantID:       hash["tenant_id"],
		Name:           hash["name"],
		Tag:            hash["tag"],
		Status:         DocumentStatus(hash["status"]),
		IsTemplate:     isTemplate,
		TemplateName:   hash["template_name"],
		RevisionCount:  revisionCount,
		LatestSequence: latest,
		ValueSetCount:  valueSets,
		RebuiltAtMs:    parseMs(hash["rebuilt_at_ms"]),
		Generation:     parseMs(hash["generation"]),
	}
}

func parseMs(s string) int64 {
	ms, _ := strconv.ParseInt(s, 10, 64)
	return ms
}
