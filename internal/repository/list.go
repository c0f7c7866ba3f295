package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crimesleuth/internal/query"
)

// CaseQuerySchema lists the case fields clients may filter, sort and select on.
var CaseQuerySchema = query.Schema{
	"id":             {Column: "id"},
	"case_number":    {Column: "case_number"},
	"title":          {Column: "title"},
	"description":    {Column: "description"},
	"status":         {Column: "status"},
	"priority":       {Column: "priority"},
	"assigned_to":    {Column: "assigned_to_id"},
	"created_by":     {Column: "created_by_id"},
	"location":       {Column: "location"},
	"tags":           {Column: "tags"},
	"evidence_count": {Column: "evidence_count", Kind: query.Int},
	"date_opened":    {Column: "date_opened", Kind: query.Time},
	"date_closed":    {Column: "date_closed", Kind: query.Time},
	"created_at":     {Column: "created_at", Kind: query.Time},
	"updated_at":     {Column: "updated_at", Kind: query.Time},
}

// EvidenceQuerySchema lists the evidence fields clients may filter, sort and select on.
var EvidenceQuerySchema = query.Schema{
	"id":              {Column: "id"},
	"evidence_id":     {Column: "identifier"},
	"case_id":         {Column: "case_id"},
	"type":            {Column: "type"},
	"title":           {Column: "title"},
	"description":     {Column: "description"},
	"file_url":        {Column: "file_url"},
	"file_type":       {Column: "file_type"},
	"file_size":       {Column: "file_size", Kind: query.Int},
	"location":        {Column: "location"},
	"collected_by":    {Column: "collected_by_id"},
	"collection_date": {Column: "collection_date", Kind: query.Time},
	"tags":            {Column: "tags"},
	"created_at":      {Column: "created_at", Kind: query.Time},
	"updated_at":      {Column: "updated_at", Kind: query.Time},
}

// applyFilters adds the WHERE conditions of q. Columns come from a schema
// whitelist, so they are safe to interpolate.
func applyFilters(db *gorm.DB, q query.ListQuery) *gorm.DB {
	for _, f := range q.Filters {
		if f.Op == query.OpIn {
			db = db.Where(fmt.Sprintf("%s IN ?", f.Column), f.Values)
			continue
		}
		db = db.Where(fmt.Sprintf("%s %s ?", f.Column, f.Op.SQL()), f.Values[0])
	}
	return db
}

// applyPage adds projection, ordering and pagination. The primary key is
// always the final sort key so pages are stable.
func applyPage(db *gorm.DB, q query.ListQuery) *gorm.DB {
	if len(q.Select) > 0 {
		db = db.Select(q.Select)
	}
	for _, s := range q.Sort {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: s.Column}, Desc: s.Desc})
	}
	db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	if q.Limit > 0 {
		db = db.Limit(q.Limit).Offset(q.Offset())
	}
	return db
}
