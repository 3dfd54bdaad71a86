package crawler

import (
	"github.com/docutag/crawler/models"
)

// ReconcileTags returns the declared tags of a task in one shape, whatever schema
// version the task uses. Misconception tags are dropped.
//
// V2 tasks list catalog ids under "categories"; they are looked up in the owning
// course and ids that do not resolve are skipped. V1 tasks carry their tags inline.
func ReconcileTags(doc models.TaskDocument, course models.CourseRecord) []models.Tag {
	var defs []models.TagDefinition
	if doc.Categories.Declared {
		defs = catalogTags(doc.Categories.IDs, course)
	} else {
		defs = inlineTags(doc)
	}

	tags := make([]models.Tag, 0, len(defs))
	for _, def := range defs {
		if def.Category == models.CategoryMisconception {
			continue
		}
		tags = append(tags, def.Tag())
	}
	return tags
}

// UnresolvedCategories lists the V2 category ids the course catalog does not define
func UnresolvedCategories(doc models.TaskDocument, course models.CourseRecord) []string {
	if !doc.Categories.Declared {
		return nil
	}
	var missing []string
	for _, id := range doc.Categories.IDs {
		if _, ok := course.TagCatalog[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func catalogTags(ids []string, course models.CourseRecord) []models.TagDefinition {
	defs := make([]models.TagDefinition, 0, len(ids))
	for _, id := range ids {
		def, ok := course.TagCatalog[id]
		if !ok {
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

func inlineTags(doc models.TaskDocument) []models.TagDefinition {
	catalog, order := extractTags(doc.Tags)
	defs := make([]models.TagDefinition, 0, len(order))
	for _, id := range order {
		defs = append(defs, catalog[id])
	}
	return defs
}
