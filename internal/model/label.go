package model

import "github.com/rotisserie/eris"

// ClassLabel is the class taxonomy every normalized record resolves to.
// The taxonomy is binary today; unhealthy records carry the matched
// symptom keyword so a per-disease taxonomy can be layered on later.
type ClassLabel string

const (
	ClassHealthy   ClassLabel = "healthy"
	ClassUnhealthy ClassLabel = "unhealthy"
)

// ClassLabels lists all taxonomy members in stable order.
func ClassLabels() []ClassLabel {
	return []ClassLabel{ClassHealthy, ClassUnhealthy}
}

// ParseClassLabel validates a raw string against the taxonomy.
func ParseClassLabel(s string) (ClassLabel, error) {
	switch ClassLabel(s) {
	case ClassHealthy, ClassUnhealthy:
		return ClassLabel(s), nil
	}
	return "", eris.Errorf("model: unknown class label %q", s)
}

func (c ClassLabel) String() string { return string(c) }
