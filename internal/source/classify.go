package source

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/plantset-cli/internal/model"
)

// unhealthyKeywords is the fixed disease-symptom vocabulary matched against
// folder names. Any hit marks the folder unhealthy.
var unhealthyKeywords = []string{
	"rust",
	"scab",
	"spot",
	"blight",
	"rot",
	"mold",
	"mildew",
	"measles",
	"mites",
}

// fold performs Unicode case folding so keyword matching is insensitive to
// the mixed folder-name casing across sources.
var fold = cases.Fold()

// matchSymptom returns the first unhealthy keyword contained in name
// (caseless), or "" when none matches.
func matchSymptom(name string) string {
	folded := fold.String(name)
	for _, kw := range unhealthyKeywords {
		if strings.Contains(folded, kw) {
			return kw
		}
	}
	return ""
}

// classifyFolder applies the keyword rule: a symptom match marks the folder
// unhealthy, absence of a match marks it healthy.
func classifyFolder(name string) (model.ClassLabel, string) {
	if kw := matchSymptom(name); kw != "" {
		return model.ClassUnhealthy, kw
	}
	return model.ClassHealthy, ""
}
