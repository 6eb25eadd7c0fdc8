package graphstore

import (
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

// Seed returns the workspace a fresh install starts with.
func Seed() Snapshot {
	note := func(id, title, text, space string) models.Note {
		return models.Note{ID: id, Title: title, Content: parser.Encode(parser.FromText(text)), SpaceID: space}
	}
	return Snapshot{
		Spaces: []models.Space{
			{ID: "space-1", Name: "Product Management", Color: "#34D399"},
			{ID: "space-2", Name: "Artificial Intelligence", Color: "#60A5FA"},
			{ID: "space-3", Name: "General", Color: "#A78BFA"},
		},
		Notes: []models.Note{
			note("1", "Product Management Methodologies",
				"Product management involves various frameworks like Agile, Scrum, Kanban, and Waterfall. "+
					"Agile focuses on iterative development and customer feedback. It is crucial for modern software development.",
				"space-1"),
			note("2", "AI Product Management",
				"Managing AI products is different from traditional software. It involves dealing with uncertainty in model performance, "+
					"data dependencies, and ethical considerations. Key challenges include data sourcing, model validation, and explaining model behavior.",
				"space-1"),
			note("3", "LLM Business Models",
				"Large Language Models (LLMs) are enabling new business models. These include API-as-a-service (like OpenAI), "+
					"specialized fine-tuned models for specific industries, and open-source models that companies can host themselves. "+
					"Monetization can be based on usage, subscription, or value-add services.",
				"space-2"),
		},
		Links: []models.Link{
			{Source: "1", Target: "2", Reason: "AI Product Management is a specialized subset of general Product Management methodologies."},
		},
		ActiveID: "1",
	}
}
