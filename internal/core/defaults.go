package core

import "homeworkcore/pkg/domain"

// Canonical book names used by the built-in templates.
const (
	BookTextbook    = "Textbook"
	BookNotebook    = "Notebook"
	BookHandwriting = "Handwriting Book"
	BookDictation   = "Dictation"
)

// DefaultTemplates returns the built-in fallback templates keyed by kid name.
// They are used when a kid has no stored template, and can be seeded into a
// store via Engine.SeedDefaultTemplates.
func DefaultTemplates() map[string]domain.Template {
	hazel := domain.Template{
		KidName: "Hazel",
		Tasks: []domain.TemplateTask{
			{Subject: "English", Book: BookTextbook},
			{Subject: "English", Book: BookDictation},
			{Subject: "English", Book: BookHandwriting},
			{Subject: "English", Book: BookNotebook},
			{Subject: "Malayalam", Book: BookTextbook},
			{Subject: "Malayalam", Book: BookDictation},
			{Subject: "Malayalam", Book: BookHandwriting},
			{Subject: "Malayalam", Book: BookNotebook},
			{Subject: "Maths", Book: BookTextbook},
			{Subject: "Maths", Book: BookDictation},
			{Subject: "Maths", Book: BookNotebook},
			{Subject: "GK", Book: BookTextbook},
			{Subject: "GK", Book: BookDictation},
		},
	}

	aiden := domain.Template{
		KidName: "Aiden",
		Tasks: append(append([]domain.TemplateTask(nil), hazel.Tasks...),
			domain.TemplateTask{Subject: "Hindi", Book: BookTextbook},
			domain.TemplateTask{Subject: "Hindi", Book: BookDictation},
			domain.TemplateTask{Subject: "Hindi", Book: BookNotebook},
		),
	}

	return map[string]domain.Template{
		hazel.KidName: hazel,
		aiden.KidName: aiden,
	}
}
