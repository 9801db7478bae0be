package domain

// Category is the class a topic falls into after classification.
type Category string

const (
	CategoryDashboard      Category = "dashboard"
	CategorySensor         Category = "sensor"
	CategoryActuator       Category = "actuator"
	CategoryStructureError Category = "structure_error"
	CategoryOther          Category = "other"
)

// TopicDescriptor is the classifier's view of a topic.
//
// SourceID is the module for dashboard topics and the project group for
// projets topics. Name carries the trailing segment of a well-formed topic
// (the variable for dashboard, the sensor/actuator name for projets).
type TopicDescriptor struct {
	SourceID  string   `json:"source_id"`
	Category  Category `json:"category"`
	Compliant bool     `json:"is_compliant"`
	Name      string   `json:"name,omitempty"`
}

// IsDashboardValue reports whether the descriptor addresses a live dashboard variable.
func (d TopicDescriptor) IsDashboardValue() bool {
	return d.Category == CategoryDashboard && d.Compliant
}
