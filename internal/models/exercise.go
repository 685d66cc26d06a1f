package models

import (
	"time"
)

type Question struct {
	ID     int    `json:"id" db:"QuestionId"`
	Name   string `json:"name" db:"Name"`
	Desc   string `json:"desc" db:"Desc"`
	Points int    `json:"points" db:"Points"`
}

// Exercise ids are chosen by the caller. Question ids are positions:
// Questions[i].ID == i once the exercise has been stored or loaded.
type Exercise struct {
	ID        int        `json:"id" db:"ExerciseId"`
	Name      string     `json:"name" db:"Name"`
	DueDate   time.Time  `json:"due_date" db:"DueDate"`
	Questions []Question `json:"questions"`
}

func NewExercise(id int, name string, dueDate time.Time) *Exercise {
	return &Exercise{
		ID:      id,
		Name:    name,
		DueDate: dueDate,
	}
}

// AddQuestion appends a question, giving it the next sequential id.
func (e *Exercise) AddQuestion(name, desc string, points int) {
	e.Questions = append(e.Questions, Question{
		ID:     len(e.Questions),
		Name:   name,
		Desc:   desc,
		Points: points,
	})
}

func (e *Exercise) TotalPoints() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}
