package model

import (
	"time"

	"github.com/stemsi/exstem-portal/internal/docstore"
)

// Response is the persisted answer/flag state of one question within one attempt.
type Response struct {
	ID              string       `json:"id"`
	Student         docstore.Ref `json:"student"`
	Exam            docstore.Ref `json:"exam"`
	Question        docstore.Ref `json:"question"`
	SelectedOption  *int         `json:"selected_option"`
	MarkedForReview bool         `json:"marked_for_review"`
	UpdatedAt       time.Time    `json:"updated_at,omitempty"`
}
