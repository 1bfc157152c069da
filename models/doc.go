// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines the JSON wire types shared by the client and the emulator.

# Envelopes

Successful responses wrap their payload:

	{"message": "login", "data": {...}}

Errors carry a message and the HTTP status:

	{"message": "Form closed", "errorCode": 409}

Decode with the generic envelope:

	var resp models.Response[models.PublicForm]

# Forms

  - PublicForm: id, title, description, startAt, endAt, questions
  - Question: id, title, type, options
  - Option: id, title

Question types:

	QuestionSingleChoice   = "single_choice"
	QuestionMultipleChoice = "multiple_choice"
	QuestionText           = "text"

# Answers

AnswerSubmission is {question_id, option_ids?, text?}. A choice answer with no
selection is encoded as "option_ids": [] so the server sees an explicit empty
selection; a nil OptionIDs is omitted.

	models.TextAnswer(3, "hello")
	models.ChoiceAnswer(4, []uint{10, 11})

# Drafts and Dashboard

  - SaveDraftRequest / DraftSubmission: server-side autosave records
  - DashboardData: statistics plus per-form participation status

Participation status values:

	StatusAvailable  = "available"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
*/
package models
