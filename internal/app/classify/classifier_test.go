package classify

import (
	"testing"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
)

func TestClassify(t *testing.T) {
	c := New("", "")

	tests := []struct {
		topic       string
		wantInScope bool
		want        domain.TopicDescriptor
	}{
		{
			topic:       "bzh/mecatro/dashboard/m1/temp",
			wantInScope: true,
			want:        domain.TopicDescriptor{SourceID: "m1", Category: domain.CategoryDashboard, Compliant: true, Name: "temp"},
		},
		{
			topic:       "bzh/mecatro/projets/g1/capteurs/t1",
			wantInScope: true,
			want:        domain.TopicDescriptor{SourceID: "g1", Category: domain.CategorySensor, Compliant: true, Name: "t1"},
		},
		{
			topic:       "bzh/mecatro/projets/g1/actuators/pump",
			wantInScope: true,
			want:        domain.TopicDescriptor{SourceID: "g1", Category: domain.CategoryActuator, Compliant: true, Name: "pump"},
		},
		{
			topic:       "bzh/mecatro/projets/g1/foo",
			wantInScope: true,
			want:        domain.TopicDescriptor{SourceID: "g1", Category: domain.CategoryStructureError},
		},
		{
			topic:       "bzh/mecatro/projets/g1/unknown/t1",
			wantInScope: true,
			want:        domain.TopicDescriptor{SourceID: "g1", Category: domain.CategoryStructureError},
		},
		{
			topic:       "bzh/mecatro/projets/g1/capteurs/t1/extra",
			wantInScope: true,
			want:        domain.TopicDescriptor{SourceID: "g1", Category: domain.CategoryStructureError},
		},
		{
			topic:       "bzh/mecatro/dashboard/m1",
			wantInScope: true,
			want:        domain.TopicDescriptor{SourceID: "m1", Category: domain.CategoryDashboard},
		},
		{
			topic:       "bzh/mecatro/dashboard/m1/v1/extra",
			wantInScope: true,
			want:        domain.TopicDescriptor{SourceID: "m1", Category: domain.CategoryDashboard},
		},
		{
			topic:       "bzh/mecatro/other/x",
			wantInScope: true,
			want:        domain.TopicDescriptor{Category: domain.CategoryOther},
		},
		{
			topic:       "bzh/mecatro",
			wantInScope: true,
			want:        domain.TopicDescriptor{Category: domain.CategoryOther},
		},
		{topic: "other/root/x", wantInScope: false},
		{topic: "bzh/other/dashboard/m1/v1", wantInScope: false},
		{topic: "bzh", wantInScope: false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, inScope := c.Classify(tt.topic)
			if inScope != tt.wantInScope {
				t.Fatalf("inScope: want %v got %v", tt.wantInScope, inScope)
			}
			if got != tt.want {
				t.Fatalf("descriptor: want %+v got %+v", tt.want, got)
			}
		})
	}
}

func TestClassifyCustomNamespace(t *testing.T) {
	c := New("site", "lab")
	if c.Filter() != "site/lab/#" {
		t.Fatalf("unexpected filter %s", c.Filter())
	}
	d, ok := c.Classify("site/lab/dashboard/m/v")
	if !ok || !d.IsDashboardValue() {
		t.Fatalf("expected compliant dashboard topic, got %+v inScope=%v", d, ok)
	}
	if _, ok := c.Classify("bzh/mecatro/dashboard/m/v"); ok {
		t.Fatalf("default namespace should be out of scope")
	}
}
