package lifecycle

import (
	"context"

	"github.com/dyluth/lodge/pkg/datasheet"
	"go.opentelemetry.io/otel/attribute"
)

// CompareData lines up every value set of a document against its Requirement.
type CompareData struct {
	DocumentID  string           `json:"document_id"`
	Requirement *ValueSetRef     `json:"requirement,omitempty"`
	Offered     []*ValueSetRef   `json:"offered"`
	AsBuilt     *ValueSetRef     `json:"as_built,omitempty"`
	Sections    []CompareSection `json:"sections"`
}

// ValueSetRef identifies a value set taking part in a comparison.
type ValueSetRef struct {
	ID      string                   `json:"id"`
	PartyID string                   `json:"party_id,omitempty"`
	Status  datasheet.ValueSetStatus `json:"status"`
}

// CompareSection is one subsection of the layout.
type CompareSection struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Order int          `json:"order"`
	Rows  []CompareRow `json:"rows"`
}

// CompareRow is one field definition across all value sets.
type CompareRow struct {
	FieldID     string              `json:"field_id"`
	Label       string              `json:"label"`
	Type        datasheet.FieldType `json:"type"`
	UOM         string              `json:"uom,omitempty"`
	Order       int                 `json:"order"`
	Requirement *string             `json:"requirement"`
	Offered     []CompareCell       `json:"offered"`
	AsBuilt     *CompareCell        `json:"as_built,omitempty"`
}

// CompareCell is one value set's value for a field, with its review state.
type CompareCell struct {
	ValueSetID string                    `json:"value_set_id"`
	PartyID    string                    `json:"party_id,omitempty"`
	Value      *string                   `json:"value"`
	Deviates   bool                      `json:"deviates"`
	Variance   *datasheet.VarianceStatus `json:"variance,omitempty"`
}

type compareSource struct {
	ref       *ValueSetRef
	values    map[string]string
	variances map[string]*datasheet.VarianceOverride
}

func (s *compareSource) cell(def datasheet.FieldDefinition, requirement *string) CompareCell {
	c := CompareCell{ValueSetID: s.ref.ID, PartyID: s.ref.PartyID}
	if v, ok := s.values[def.DefinitionID]; ok {
		c.Value = &v
	}
	if o, ok := s.variances[def.DefinitionID]; ok {
		status := o.Status
		c.Variance = &status
	}
	c.Deviates = datasheet.Deviates(def, requirement, c.Value)
	return c
}

// GetCompareData joins, per field definition, the Requirement value with each
// Offered value (optionally only partyFilter's) and the AsBuilt value, each
// with its variance override and a computed deviation flag. Sections follow
// subsection order and rows follow field order. It only reads committed state.
func (e *Engine) GetCompareData(ctx context.Context, scope Scope, documentID, partyFilter string) (data *CompareData, err error) {
	const op = "compare"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("party", partyFilter))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}
	sets, err := e.store.ListValueSets(ctx, documentID)
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}

	data = &CompareData{DocumentID: documentID, Offered: []*ValueSetRef{}}
	var requirement, asBuilt *compareSource
	var offered []*compareSource
	for _, vs := range sets {
		if vs.Context == datasheet.ContextOffered && partyFilter != "" && vs.PartyID != partyFilter {
			continue
		}
		view, err := e.valueSetView(ctx, vs)
		if err != nil {
			return nil, e.translate(op, documentID, err)
		}
		src := &compareSource{
			ref:       &ValueSetRef{ID: vs.ID, PartyID: vs.PartyID, Status: vs.Status},
			values:    view.Values,
			variances: view.Variances,
		}
		switch vs.Context {
		case datasheet.ContextRequirement:
			requirement = src
			data.Requirement = src.ref
		case datasheet.ContextOffered:
			offered = append(offered, src)
			data.Offered = append(data.Offered, src.ref)
		case datasheet.ContextAsBuilt:
			asBuilt = src
			data.AsBuilt = src.ref
		}
	}

	for _, sub := range datasheet.SortedLayout(doc.Layout) {
		section := CompareSection{ID: sub.ID, Title: sub.Title, Order: sub.Order, Rows: make([]CompareRow, 0, len(sub.Fields))}
		for _, def := range sub.Fields {
			row := CompareRow{
				FieldID: def.DefinitionID,
				Label:   def.Label,
				Type:    def.Type,
				UOM:     def.UOM,
				Order:   def.Order,
				Offered: make([]CompareCell, 0, len(offered)),
			}
			if requirement != nil {
				if v, ok := requirement.values[def.DefinitionID]; ok {
					row.Requirement = &v
				}
			}
			for _, src := range offered {
				row.Offered = append(row.Offered, src.cell(def, row.Requirement))
			}
			if asBuilt != nil {
				c := asBuilt.cell(def, row.Requirement)
				row.AsBuilt = &c
			}
			section.Rows = append(section.Rows, row)
		}
		data.Sections = append(data.Sections, section)
	}
	return data, nil
}
