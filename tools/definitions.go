package tools

import (
	"time"

	"github.com/lunai408/local-agent-factory/core"
)

// Definition describes one registered tool: where it lives, what it
// produces, and the parameters it accepts. The set of definitions is closed
// at startup; nothing registers tools at runtime.
type Definition struct {
	Name        string
	Description string
	Category    core.ArtifactKind
	Endpoint    string
	InputSchema map[string]interface{}
	Timeout     time.Duration
}

// Endpoints names the tool servers a deployment runs. An empty URL leaves
// that tool out of the registry.
type Endpoints struct {
	ChartURL string
	PDFURL   string
	ImageURL string
}

// DefaultDefinitions returns the standard artifact-producing tools: chart
// rendering, PDF generation, and image generation.
func DefaultDefinitions(ep Endpoints) []Definition {
	var defs []Definition
	if ep.ChartURL != "" {
		defs = append(defs, Definition{
			Name:        "generate_chart",
			Description: "Render a chart from structured data and return it as a PNG image. Supports scatter, line, bar, horizontal bar, histogram, and pie charts.",
			Category:    core.ArtifactChart,
			Endpoint:    ep.ChartURL,
			Timeout:     30 * time.Second,
			InputSchema: ObjectSchema(map[string]interface{}{
				"chart_type": StringEnumProperty("Type of chart to render",
					"scatter", "line", "bar", "barh", "histogram", "pie"),
				"data":   ObjectProperty("Chart data. Shape depends on chart_type (e.g. x/y series for line, labels/values for pie)."),
				"title":  StringProperty("Chart title"),
				"xlabel": StringProperty("X axis label"),
				"ylabel": StringProperty("Y axis label"),
				"theme":  StringEnumProperty("Visual theme", "light", "dark"),
				"width":  IntegerProperty("Width in pixels"),
				"height": IntegerProperty("Height in pixels"),
			}, "chart_type", "data"),
		})
	}
	if ep.PDFURL != "" {
		defs = append(defs, Definition{
			Name:        "generate_pdf",
			Description: "Generate a PDF document from markdown content.",
			Category:    core.ArtifactDocument,
			Endpoint:    ep.PDFURL,
			Timeout:     60 * time.Second,
			InputSchema: ObjectSchema(map[string]interface{}{
				"title":    StringProperty("Document title"),
				"markdown": StringProperty("Document body as markdown"),
				"paper":    StringEnumProperty("Paper size", "a4", "letter"),
			}, "title", "markdown"),
		})
	}
	if ep.ImageURL != "" {
		defs = append(defs, Definition{
			Name:        "generate_image",
			Description: "Generate an image from a text prompt. Generation is not idempotent; repeating a call produces a different image.",
			Category:    core.ArtifactImage,
			Endpoint:    ep.ImageURL,
			Timeout:     120 * time.Second,
			InputSchema: ObjectSchema(map[string]interface{}{
				"prompt":          StringProperty("Text description of the desired image"),
				"negative_prompt": StringProperty("What the image must not contain"),
				"width":           IntegerProperty("Width in pixels"),
				"height":          IntegerProperty("Height in pixels"),
				"seed":            IntegerProperty("Random seed; omit for a random one"),
			}, "prompt"),
		})
	}
	return defs
}
