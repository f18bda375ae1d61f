package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// EntityType enumerates the entity kinds the inference engine understands.
type EntityType string

const (
	EntityStudent EntityType = "student"
	EntityParent  EntityType = "parent"
	EntityTeacher EntityType = "teacher"
	EntityClass   EntityType = "class"
)

// ParseEntityType validates a raw entity type string.
func ParseEntityType(raw string) (EntityType, error) {
	switch EntityType(raw) {
	case EntityStudent, EntityParent, EntityTeacher, EntityClass:
		return EntityType(raw), nil
	default:
		return "", fmt.Errorf("unknown entity type %q", raw)
	}
}

// Student represents a learner registered in the institution.
type Student struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Age       int       `db:"age" json:"age"`
	Grade     int       `db:"grade" json:"grade"`
	ParentID  *string   `db:"parent_id" json:"parent_id,omitempty"`
	ClassID   *string   `db:"class_id" json:"class_id,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Parent represents a guardian who may be linked to one or more students.
type Parent struct {
	ID          string         `db:"id" json:"id"`
	FullName    string         `db:"full_name" json:"full_name"`
	Email       string         `db:"email" json:"email"`
	ChildrenIDs pq.StringArray `db:"children_ids" json:"children_ids"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Teacher represents an instructor record.
type Teacher struct {
	ID         string         `db:"id" json:"id"`
	FullName   string         `db:"full_name" json:"full_name"`
	Subject    string         `db:"subject" json:"subject"`
	SubjectIDs pq.StringArray `db:"subject_ids" json:"subject_ids"`
	ClassIDs   pq.StringArray `db:"class_ids" json:"class_ids"`
	Active     bool           `db:"active" json:"active"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// Class represents an academic class or section.
type Class struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Grade       int            `db:"grade" json:"grade"`
	SubjectIDs  pq.StringArray `db:"subject_ids" json:"subject_ids"`
	MaxCapacity int            `db:"max_capacity" json:"max_capacity"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with its current enrollment count.
type ClassDetail struct {
	Class
	EnrolledCount int `db:"enrolled_count" json:"enrolled_count"`
}

// Subject represents an academic subject.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Entity is a tagged union over the four entity kinds. Exactly one of
// the typed fields is populated, matching Type.
type Entity struct {
	Type         EntityType          `json:"type"`
	Student      *Student            `json:"student,omitempty"`
	Parent       *Parent             `json:"parent,omitempty"`
	Teacher      *Teacher            `json:"teacher,omitempty"`
	Class        *ClassDetail        `json:"class,omitempty"`
	Associations *EntityAssociations `json:"associations,omitempty"`
}

// EntityAssociations carries the immediate relations loaded alongside
// an entity: a student's parent and class, a parent's children, a
// teacher's classes.
type EntityAssociations struct {
	Parent   *Parent       `json:"parent,omitempty"`
	Class    *ClassDetail  `json:"class,omitempty"`
	Children []Student     `json:"children,omitempty"`
	Classes  []ClassDetail `json:"classes,omitempty"`
}

// ID returns the identifier of the wrapped entity.
func (e Entity) ID() string {
	switch e.Type {
	case EntityStudent:
		if e.Student != nil {
			return e.Student.ID
		}
	case EntityParent:
		if e.Parent != nil {
			return e.Parent.ID
		}
	case EntityTeacher:
		if e.Teacher != nil {
			return e.Teacher.ID
		}
	case EntityClass:
		if e.Class != nil {
			return e.Class.ID
		}
	}
	return ""
}

// Name returns the display name of the wrapped entity.
func (e Entity) Name() string {
	switch e.Type {
	case EntityStudent:
		if e.Student != nil {
			return e.Student.FullName
		}
	case EntityParent:
		if e.Parent != nil {
			return e.Parent.FullName
		}
	case EntityTeacher:
		if e.Teacher != nil {
			return e.Teacher.FullName
		}
	case EntityClass:
		if e.Class != nil {
			return e.Class.Name
		}
	}
	return ""
}
