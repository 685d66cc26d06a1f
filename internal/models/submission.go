package models

import (
	"time"
)

// UnassignedID marks an id the store should generate.
const UnassignedID = -1

type Submission struct {
	ID             int64     `json:"id" db:"SubmissionId"`
	User           User      `json:"user"`
	Exercise       Exercise  `json:"exercise"`
	SubmissionTime time.Time `json:"submission_time" db:"SubmissionTime"`
	// Grades[i] is the grade of the question with id i.
	Grades []float64 `json:"grades"`
}

func NewSubmission(user User, exercise Exercise, submittedAt time.Time, grades []float64) *Submission {
	return &Submission{
		ID:             UnassignedID,
		User:           user,
		Exercise:       exercise,
		SubmissionTime: submittedAt,
		Grades:         grades,
	}
}

func (s *Submission) HasAssignedID() bool {
	return s.ID != UnassignedID
}

func (s *Submission) TotalGrade() float64 {
	total := 0.0
	for _, g := range s.Grades {
		total += g
	}
	return total
}
