package crawler

import (
	"github.com/docutag/crawler/models"
)

// BuildCourseCatalogs turns course documents into course records keyed by file path.
// A course without tags gets an empty catalog.
func BuildCourseCatalogs(docs []models.CourseDocument) map[string]models.CourseRecord {
	courses := make(map[string]models.CourseRecord, len(docs))
	for _, doc := range docs {
		catalog, order := extractTags(doc.Tags)
		courses[doc.Path] = models.CourseRecord{
			Path:       doc.Path,
			Name:       doc.Name,
			TagCatalog: catalog,
			Order:      order,
		}
	}
	return courses
}

// extractTags keys each entry by its declared id, falling back to the mapping key
// for entries that forgot to declare one. Only id, name and type are kept.
func extractTags(raw models.OrderedMap[models.RawTag]) (map[string]models.TagDefinition, []string) {
	catalog := make(map[string]models.TagDefinition, raw.Len())
	order := make([]string, 0, raw.Len())
	for _, key := range raw.Keys() {
		value, _ := raw.Get(key)
		id := key
		if value.ID != "" {
			id = value.ID
		}
		if _, seen := catalog[id]; !seen {
			order = append(order, id)
		}
		catalog[id] = models.TagDefinition{
			ID:       id,
			Text:     value.Name,
			Category: value.Type,
		}
	}
	return catalog, order
}
