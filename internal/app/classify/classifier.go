// Package classify maps broker topics onto the dashboard / projets grammar.
package classify

import (
	"strings"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
)

const (
	DefaultRoot      = "bzh"
	DefaultSubsystem = "mecatro"

	segDashboard = "dashboard"
	segProjects  = "projets"

	dashboardSegments = 5
	projectSegments   = 6
)

var categoryLiterals = map[string]domain.Category{
	"capteurs":    domain.CategorySensor,
	"sensors":     domain.CategorySensor,
	"actionneurs": domain.CategoryActuator,
	"actuators":   domain.CategoryActuator,
}

// Classifier is stateless and safe for concurrent use.
type Classifier struct {
	root      string
	subsystem string
}

func New(root, subsystem string) *Classifier {
	if root == "" {
		root = DefaultRoot
	}
	if subsystem == "" {
		subsystem = DefaultSubsystem
	}
	return &Classifier{root: root, subsystem: subsystem}
}

// Namespace returns "<root>/<subsystem>".
func (c *Classifier) Namespace() string {
	return c.root + "/" + c.subsystem
}

// Filter is the subscription filter covering the whole namespace.
func (c *Classifier) Filter() string {
	return c.Namespace() + "/#"
}

// Classify returns inScope=false for topics outside the namespace. In-scope
// topics that do not match the grammar come back non-compliant.
func (c *Classifier) Classify(topic string) (domain.TopicDescriptor, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != c.root || parts[1] != c.subsystem {
		return domain.TopicDescriptor{}, false
	}
	if len(parts) < 3 {
		return domain.TopicDescriptor{Category: domain.CategoryOther}, true
	}

	switch parts[2] {
	case segDashboard:
		return classifyDashboard(parts), true
	case segProjects:
		return classifyProject(parts), true
	default:
		return domain.TopicDescriptor{Category: domain.CategoryOther}, true
	}
}

func classifyDashboard(parts []string) domain.TopicDescriptor {
	d := domain.TopicDescriptor{Category: domain.CategoryDashboard}
	if len(parts) > 3 {
		d.SourceID = parts[3]
	}
	if len(parts) == dashboardSegments && parts[3] != "" && parts[4] != "" {
		d.Compliant = true
		d.Name = parts[4]
	}
	return d
}

func classifyProject(parts []string) domain.TopicDescriptor {
	d := domain.TopicDescriptor{Category: domain.CategoryStructureError}
	if len(parts) > 3 {
		d.SourceID = parts[3]
	}
	if len(parts) != projectSegments || parts[3] == "" || parts[5] == "" {
		return d
	}
	cat, ok := categoryLiterals[parts[4]]
	if !ok {
		return d
	}
	d.Category = cat
	d.Compliant = true
	d.Name = parts[5]
	return d
}
